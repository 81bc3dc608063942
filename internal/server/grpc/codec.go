package grpc

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// decode fills v from the JSON form of in.
func decode(in *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return common.ErrMalformedRequest
	}
	return nil
}

// encode converts v to a Struct through its JSON form.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
