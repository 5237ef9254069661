package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	errs := Collect(
		Required("title", "  "),
		Required("author", "Le Guin"),
		MaxLen("author", strings.Repeat("x", 11), 10),
	)
	assert.Len(t, errs, 2)
	assert.Equal(t, "title: required; author: must be at most 10 characters", errs.Error())

	assert.Empty(t, Collect(Required("title", "Dune")))
}
