package ingester

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/go-errors/errors"
	"github.com/klauspost/compress/zstd"

	"github.com/basewatch/flashblocks-ingester/models"
)

// Decode failures are recoverable: the receive loop counts them and moves
// on to the next message.
var (
	ErrMalformedFragment  = errors.New("malformed fragment")
	ErrUnsupportedVersion = errors.New("unsupported fragment version")
)

// zstd frame magic, little-endian. Binary websocket frames from the
// builder may be compressed; text frames never are.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var zstdReader *zstd.Decoder

func init() {
	// stateless decoder, safe to share across goroutines
	zstdReader, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
}

// wireFragment is the raw JSON message shape. Pointer fields distinguish
// absent from zero so required fields can be validated.
type wireFragment struct {
	Version   string                   `json:"version"`
	PayloadID *string                  `json:"payload_id"`
	Index     *uint64                  `json:"index"`
	Base      *models.FragmentBase     `json:"base"`
	Diff      *models.FragmentDiff     `json:"diff"`
	Metadata  *models.FragmentMetadata `json:"metadata"`
	Final     bool                     `json:"final"`
}

// DecodeFragment parses one raw stream message into a Fragment, stamping
// it with the arrival time. It never panics on truncated or garbage input.
func DecodeFragment(raw []byte, at time.Time) (models.Fragment, error) {
	if bytes.HasPrefix(raw, zstdMagic) {
		inflated, err := zstdReader.DecodeAll(raw, nil)
		if err != nil {
			return models.Fragment{}, errors.Errorf("%w: inflating compressed frame: %w", ErrMalformedFragment, err)
		}
		raw = inflated
	}

	var wire wireFragment
	if err := json.Unmarshal(raw, &wire); err != nil {
		return models.Fragment{}, errors.Errorf("%w: %w", ErrMalformedFragment, err)
	}
	if wire.Version != "" && wire.Version != "v1" {
		return models.Fragment{}, errors.Errorf("%w: %q", ErrUnsupportedVersion, wire.Version)
	}
	if wire.PayloadID == nil || *wire.PayloadID == "" {
		return models.Fragment{}, errors.Errorf("%w: missing payload_id", ErrMalformedFragment)
	}
	if wire.Index == nil {
		return models.Fragment{}, errors.Errorf("%w: missing index", ErrMalformedFragment)
	}
	if wire.Diff == nil {
		return models.Fragment{}, errors.Errorf("%w: missing diff", ErrMalformedFragment)
	}

	frag := models.Fragment{
		PayloadID:  *wire.PayloadID,
		Index:      *wire.Index,
		Base:       wire.Base,
		Diff:       *wire.Diff,
		Final:      wire.Final,
		ReceivedAt: at,
	}
	if wire.Metadata != nil {
		frag.Metadata = *wire.Metadata
	}
	return frag, nil
}
