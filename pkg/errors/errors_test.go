package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	cause := errors.New("already watching")
	err := Wrap(http.StatusConflict, "Duplicate watch", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "already watching", err.Details)
	assert.Equal(t, "409 Duplicate watch: already watching", err.Error())
	assert.Equal(t, "", Wrap(http.StatusBadRequest, "Bad", nil).Details)
}
