package account

import (
	"github.com/canopy-network/tokenbound/pkg/ledger"
)

const accountJSON = `[
  {"type":"function","name":"implementation","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
  {"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
  {"type":"function","name":"token","inputs":[],"outputs":[{"name":"chainId","type":"uint256"},{"name":"tokenContract","type":"address"},{"name":"tokenId","type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"nonce","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"executeCall","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[{"name":"result","type":"bytes"}],"stateMutability":"payable"},
  {"type":"function","name":"upgrade","inputs":[{"name":"implementation","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"isValidSignature","inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[{"name":"magicValue","type":"bytes4"}],"stateMutability":"view"},
  {"type":"function","name":"supportsInterface","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
  {"type":"function","name":"onERC721Received","inputs":[{"name":"operator","type":"address"},{"name":"from","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}],"stateMutability":"nonpayable"},
  {"type":"function","name":"onERC1155Received","inputs":[{"name":"operator","type":"address"},{"name":"from","type":"address"},{"name":"id","type":"uint256"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}],"stateMutability":"nonpayable"},
  {"type":"function","name":"onERC1155BatchReceived","inputs":[{"name":"operator","type":"address"},{"name":"from","type":"address"},{"name":"ids","type":"uint256[]"},{"name":"values","type":"uint256[]"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}],"stateMutability":"nonpayable"},
  {"type":"event","name":"Upgraded","inputs":[{"name":"implementation","type":"address","indexed":true}],"anonymous":false},
  {"type":"event","name":"TransactionExecuted","inputs":[{"name":"target","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":true},{"name":"data","type":"bytes","indexed":false}],"anonymous":false}
]`

// ABI is the account interface as seen through the shell.
var ABI = ledger.MustParseABI(accountJSON)

// Magic values and interface ids.
var (
	MagicValidSignature   = [4]byte{0x16, 0x26, 0xba, 0x7e}
	MagicInvalidSignature = [4]byte{0xff, 0xff, 0xff, 0xff}

	InterfaceERC165          = [4]byte{0x01, 0xff, 0xc9, 0xa7}
	InterfaceERC721Receiver  = [4]byte{0x15, 0x0b, 0x7a, 0x02}
	InterfaceERC1155Receiver = [4]byte{0x4e, 0x23, 0x12, 0xe0}
	InterfaceERC1271         = [4]byte{0x16, 0x26, 0xba, 0x7e}
	// InterfaceAccount is the XOR of the token, owner, nonce and executeCall
	// selectors.
	InterfaceAccount = interfaceID("token", "owner", "nonce", "executeCall")
)

func selector(name string) [4]byte {
	var sel [4]byte
	copy(sel[:], ABI.Methods[name].ID)
	return sel
}

func interfaceID(methods ...string) [4]byte {
	var id [4]byte
	for _, m := range methods {
		sel := selector(m)
		for i := range id {
			id[i] ^= sel[i]
		}
	}
	return id
}
