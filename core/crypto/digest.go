package crypto

import "github.com/NethermindEth/katana/core/felt"

type Digest interface {
	Update(...*felt.Felt) Digest
	Finish() *felt.Felt
}
