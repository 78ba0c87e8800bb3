package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		page, size    int
		offset, limit int
	}{
		{name: "defaults", page: 0, size: 0, offset: 0, limit: DefaultPageSize},
		{name: "second page", page: 2, size: 10, offset: 10, limit: 10},
		{name: "negative page", page: -3, size: 5, offset: 0, limit: 5},
		{name: "size capped", page: 3, size: 500, offset: 200, limit: MaxPageSize},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			offset, limit := Calculate(tt.page, tt.size)
			assert.Equal(t, tt.offset, offset)
			assert.Equal(t, tt.limit, limit)
		})
	}
}
