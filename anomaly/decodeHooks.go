package anomaly

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Returns a decodeHook function that lets ranges be written either as a two element
// list, [min, max], or as a map with min and max keys.
// This supports configuration solutions like spf13/viper that use mapstructure to unmarshal yaml files.
func GetDecodeHook() mapstructure.DecodeHookFunc {
	return rangeDecodeHookFunc()
}

func rangeDecodeHookFunc() mapstructure.DecodeHookFuncType {
	intRange := reflect.TypeOf(IntRange{})
	floatRange := reflect.TypeOf(FloatRange{})

	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != intRange && t != floatRange {
			return data, nil
		}
		if f.Kind() != reflect.Slice && f.Kind() != reflect.Array {
			// maps are decoded by mapstructure as usual
			return data, nil
		}

		v := reflect.ValueOf(data)
		if v.Len() != 2 {
			return nil, fmt.Errorf("%w: range must have exactly two elements, got %d", ErrInvalidParams, v.Len())
		}
		return map[string]interface{}{
			"min": v.Index(0).Interface(),
			"max": v.Index(1).Interface(),
		}, nil
	}
}

// Returns base with the keys present in data, a generic map as produced by a yaml
// parser, decoded over it. The result is validated by building an Injector.
func DecodeParams(data interface{}, base Params) (Params, error) {
	params := base

	decoderConfig := &mapstructure.DecoderConfig{
		DecodeHook:  GetDecodeHook(),
		ErrorUnused: true,
		Result:      &params,
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return Params{}, err
	}
	if err := decoder.Decode(data); err != nil {
		return Params{}, err
	}

	// Use constructor for its error checking
	if _, err := NewInjector(params); err != nil {
		return Params{}, err
	}

	return params, nil
}
