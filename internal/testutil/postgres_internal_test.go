package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithSearchPath(t *testing.T) {
	assert.Equal(t,
		"postgres://soc:pw@localhost:5432/soc?search_path=soc_test_1&sslmode=disable",
		withSearchPath("postgres://soc:pw@localhost:5432/soc?sslmode=disable", "soc_test_1"))
	assert.Equal(t,
		"host=localhost dbname=soc search_path=soc_test_1",
		withSearchPath("host=localhost dbname=soc", "soc_test_1"))
}
