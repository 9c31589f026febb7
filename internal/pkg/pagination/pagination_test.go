package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func contextWithQuery(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+rawQuery, nil)
	return c
}

func TestFromContext(t *testing.T) {
	cases := []struct {
		query string
		want  Query
	}{
		{"", Query{Page: 1, Size: DefaultSize}},
		{"page=3&size=20", Query{Page: 3, Size: 20}},
		{"page=-1&size=0", Query{Page: 1, Size: DefaultSize}},
		{"page=x&size=1000", Query{Page: 1, Size: MaxSize}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FromContext(contextWithQuery(tc.query)), tc.query)
	}
}

func TestFixedSizeIgnoresSizeParam(t *testing.T) {
	assert.Equal(t, Query{Page: 2, Size: 5}, FixedSize(contextWithQuery("page=2&size=99"), 5))
	assert.Equal(t, Query{Page: 1, Size: 50}, FixedSize(contextWithQuery("page=0"), 50))
}
