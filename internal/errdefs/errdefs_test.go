package errdefs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		kind        Kind
		fatal       bool
		recoverable bool
	}{
		{"configuration", Configuration("engine binary missing", nil), KindConfiguration, true, false},
		{"validation", Validation("unknown residue token", nil), KindValidation, true, false},
		{"directory", Directory("cannot create workdir", fs.ErrPermission), KindDirectory, true, false},
		{"run failure", RunFailure("exit status 1", nil), KindRunFailure, false, true},
		{"parse", Parse("replicate count mismatch", nil), KindParse, false, true},
		{"io", IO("Dif file absent", fs.ErrNotExist), KindIO, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsKind(tt.err, tt.kind))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.Equal(t, tt.recoverable, IsRecoverable(tt.err))
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("position GA104: %w", Parse("short series", nil))
	assert.True(t, IsKind(err, KindParse))
	assert.False(t, IsKind(err, KindIO))
	assert.True(t, IsRecoverable(err))
}

func TestUnwrapReachesCause(t *testing.T) {
	err := IO("missing output", fs.ErrNotExist)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestIsMatchesSameKindSentinel(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Validation("bad list", nil))
	assert.True(t, errors.Is(err, Validation("", nil)))
	assert.False(t, errors.Is(err, Parse("", nil)))
}
