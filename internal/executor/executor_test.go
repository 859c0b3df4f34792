package executor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/apperror"
)

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    Language
		wantErr bool
	}{
		{in: "", want: JavaScript},
		{in: "javascript", want: JavaScript},
		{in: "JS", want: JavaScript},
		{in: " typescript ", want: TypeScript},
		{in: "ts", want: TypeScript},
		{in: "python", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLanguage(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperror.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, int64(128*1024*1024), l.MemoryLimitBytes)
	assert.Equal(t, time.Second, l.Timeout)
}

func TestOutcomeConstructors(t *testing.T) {
	ok := Succeeded([]byte("4"), nil)
	assert.True(t, ok.OK())
	assert.Equal(t, "", ok.Kind())
	assert.NotNil(t, ok.Logs, "logs should never be nil so they encode as []")

	fail := Failed(apperror.Timeout("too slow"), []string{"partial"})
	assert.False(t, fail.OK())
	assert.Equal(t, "timeout", fail.Kind())
	assert.Equal(t, []string{"partial"}, fail.Logs)
}
