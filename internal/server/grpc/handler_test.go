package grpc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestNumber_Saturates(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int
	}{
		{"plain", 3, 3},
		{"fraction truncated", 2.9, 2},
		{"huge", 1e300, math.MaxInt32},
		{"very negative", -1e300, math.MinInt32},
		{"infinity", math.Inf(1), math.MaxInt32},
		{"nan", math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &structpb.Struct{Fields: map[string]*structpb.Value{"page": structpb.NewNumberValue(tt.in)}}
			assert.Equal(t, tt.want, number(req, "page"))
		})
	}

	assert.Equal(t, 0, number(&structpb.Struct{}, "page"))
}
