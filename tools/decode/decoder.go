package decode

import (
	"ChatRelay/tools/errs"

	"github.com/mitchellh/mapstructure"
)

// DecodeMap decodes a loosely-typed payload map into T.
// Field names match on the json tag; unknown keys are ignored.
func DecodeMap[T any](in map[string]any) (*T, error) {
	if in == nil {
		return nil, errs.New("nil payload map")
	}
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "build decoder")
	}
	if err := dec.Decode(in); err != nil {
		return nil, errs.WrapMsg(err, "decode payload")
	}
	return &out, nil
}
