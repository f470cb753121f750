package state

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

var (
	accountPrefix          = []byte("account:")
	tokenPrefix            = []byte("token:")
	tokenListKey           = ethcrypto.Keccak256([]byte("token-list"))
	collateralPrefix       = []byte("registry/collateral:")
	collateralListKey      = ethcrypto.Keccak256([]byte("registry/collateral-list"))
	bondPolicyPrefix       = []byte("registry/bond:")
	bondPolicyListKey      = ethcrypto.Keccak256([]byte("registry/bond-list"))
	maxBondsKey            = ethcrypto.Keccak256([]byte("registry/max-bonds"))
	vaultPrefix            = []byte("vault:")
	vaultListPrefix        = []byte("vault-list:")
	bondTokenPrefix        = []byte("bond/token:")
	bondTokenListKey       = ethcrypto.Keccak256([]byte("bond/token-list"))
	bondSupplyPrefix       = []byte("bond/supply:")
	bondTotalDebtPrefix    = []byte("bond/debt:")
)

func prefixedKey(prefix []byte, parts ...string) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, 0, len(accountPrefix)+len(addr))
	buf = append(buf, accountPrefix...)
	buf = append(buf, addr...)
	return ethcrypto.Keccak256(buf)
}

func vaultKey(bond string, addr []byte) []byte {
	buf := make([]byte, 0, len(vaultPrefix)+len(bond)+1+len(addr))
	buf = append(buf, vaultPrefix...)
	buf = append(buf, bond...)
	buf = append(buf, ':')
	buf = append(buf, addr...)
	return ethcrypto.Keccak256(buf)
}

func vaultListKey(addr []byte) []byte {
	buf := make([]byte, 0, len(vaultListPrefix)+len(addr))
	buf = append(buf, vaultListPrefix...)
	buf = append(buf, addr...)
	return ethcrypto.Keccak256(buf)
}
