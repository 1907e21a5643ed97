package helper_test

import (
	"net/url"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/webglass/webglass/internal/helper"
)

func TestCanonicalAddr(t *testing.T) {
	c := qt.New(t)

	u, err := url.Parse("https://www.google.com/search")
	c.Assert(err, qt.IsNil)
	c.Assert(helper.CanonicalAddr(u), qt.Equals, "www.google.com:443")

	u, err = url.Parse("http://www.google.com")
	c.Assert(err, qt.IsNil)
	c.Assert(helper.CanonicalAddr(u), qt.Equals, "www.google.com:80")

	u, err = url.Parse("http://127.0.0.1:8080/a")
	c.Assert(err, qt.IsNil)
	c.Assert(helper.CanonicalAddr(u), qt.Equals, "127.0.0.1:8080")
}

func TestNormalizeHost(t *testing.T) {
	c := qt.New(t)

	c.Assert(helper.NormalizeHost("X.COM"), qt.Equals, "x.com")
	c.Assert(helper.NormalizeHost("x.com:443"), qt.Equals, "x.com")
	c.Assert(helper.NormalizeHost("img.X.com:80"), qt.Equals, "img.x.com")
	c.Assert(helper.NormalizeHost("127.0.0.1:8080"), qt.Equals, "127.0.0.1")
}
