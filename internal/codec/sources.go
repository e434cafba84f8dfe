package codec

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// argSources computes the calldata byte-range that encoded each top-level
// argument. Static types are inline in the head: their
// source covers exactly their head slot. Dynamic types place a 32-byte
// offset pointer in the head; the source instead covers the tail region the
// pointer references, for the value's full encoded length.
func argSources(inputs abi.Arguments, body []byte) []models.DataSource {
	sources := make([]models.DataSource, len(inputs))

	headPos := 0
	for i, input := range inputs {
		dynamic := isDynamicType(input.Type)
		if dynamic {
			sources[i] = dynamicArgSource(body, headPos)
		} else {
			size := staticSize(input.Type)
			sources[i] = staticArgSource(body, headPos, size)
		}
		if dynamic {
			headPos += 32
		} else {
			headPos += staticSize(input.Type)
		}
	}

	// Tails are laid out in argument order, so a dynamic value ends where the
	// next dynamic argument's tail begins; the last one runs to the end.
	for i := range sources {
		if sources[i].Encoding != "tail" || sources[i].Length == 0 {
			continue
		}
		for j := i + 1; j < len(sources); j++ {
			next := sources[j]
			if next.Encoding == "tail" && next.Offset > sources[i].Offset && next.Offset-4 <= len(body) {
				sources[i].Length = next.Offset - sources[i].Offset
				sources[i].Raw = "0x" + hex.EncodeToString(body[sources[i].Offset-4:next.Offset-4])
				break
			}
		}
	}

	return sources
}

func staticArgSource(body []byte, headPos, size int) models.DataSource {
	offset := 4 + headPos
	raw := ""
	if headPos+size <= len(body) {
		raw = "0x" + hex.EncodeToString(body[headPos:headPos+size])
	}
	return models.DataSource{
		Kind:     models.SourceCalldata,
		Offset:   offset,
		Length:   size,
		Raw:      raw,
		Encoding: "head",
	}
}

func dynamicArgSource(body []byte, headPos int) models.DataSource {
	if headPos+32 > len(body) {
		return models.DataSource{Kind: models.SourceCalldata, Offset: 4 + headPos, Length: 0, Encoding: "tail"}
	}

	ptr := new(big.Int).SetBytes(body[headPos : headPos+32]).Int64()
	tailStart := int(ptr)
	offset := 4 + tailStart

	if tailStart < 0 || tailStart > len(body) {
		return models.DataSource{Kind: models.SourceCalldata, Offset: offset, Length: 0, Encoding: "tail"}
	}

	length := len(body) - tailStart
	raw := "0x" + hex.EncodeToString(body[tailStart:])

	return models.DataSource{
		Kind:     models.SourceCalldata,
		Offset:   offset,
		Length:   length,
		Raw:      raw,
		Encoding: "tail",
	}
}
