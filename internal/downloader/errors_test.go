package downloader

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), CategoryExtraction},
		{"categorized", &CategorizedError{Category: CategoryStorage, Err: errors.New("put")}, CategoryStorage},
		{"wrapped", fmt.Errorf("item: %w", &CategorizedError{Category: CategoryNetwork, Err: errors.New("reset")}), CategoryNetwork},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), CategoryCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.err))
		})
	}
}

func TestWrapCategoryKeepsExisting(t *testing.T) {
	inner := &CategorizedError{Category: CategoryRateLimited, Err: errors.New("429")}
	got := wrapCategory(CategoryExtraction, fmt.Errorf("tier: %w", inner))

	assert.Equal(t, CategoryRateLimited, CategoryOf(got))
	assert.Nil(t, wrapCategory(CategoryStorage, nil))
}

func TestCategorizedErrorUnwraps(t *testing.T) {
	err := wrapCategory(CategoryFilesystem, ErrNoMediaProduced)

	assert.ErrorIs(t, err, ErrNoMediaProduced)
	assert.Equal(t, ErrNoMediaProduced.Error(), err.Error())
	assert.Equal(t, "storage", (&CategorizedError{Category: CategoryStorage}).Error())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 130, ExitCode(fmt.Errorf("interrupted: %w", context.Canceled)))
	assert.Equal(t, 2, ExitCode(&CategorizedError{Category: CategoryInvalidURL, Err: errors.New("no urls")}))
	assert.Equal(t, 1, ExitCode(errors.New("config")))
}
