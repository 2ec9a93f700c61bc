package app

import (
	"testing"
	"time"

	"github.com/klokku/snapcal/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestWriteTimeout(t *testing.T) {
	tests := []struct {
		name     string
		timeouts config.Timeouts
		want     time.Duration
	}{
		{
			name:     "sum of call timeouts and margin",
			timeouts: config.Timeouts{Extraction: 60 * time.Second, Timezone: 10 * time.Second, Calendar: 15 * time.Second},
			want:     100 * time.Second,
		},
		{
			name:     "unbounded extraction disables the limit",
			timeouts: config.Timeouts{Timezone: 10 * time.Second, Calendar: 15 * time.Second},
			want:     0,
		},
		{
			name:     "all unbounded",
			timeouts: config.Timeouts{},
			want:     0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, writeTimeout(tt.timeouts))
		})
	}
}
