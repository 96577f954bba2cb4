package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandler(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ping")
	assert.NoError(err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal("OK", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	assert.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/version")
	assert.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
}
