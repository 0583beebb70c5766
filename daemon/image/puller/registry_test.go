package puller

import (
	"testing"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/google/go-containerregistry/pkg/authn"
	"gotest.tools/v3/assert"
)

func TestAuthenticatorAnonymousWhenEmpty(t *testing.T) {
	assert.Equal(t, authenticator(nil), authn.Anonymous)
	assert.Equal(t, authenticator(&apitypes.AuthConfig{}), authn.Anonymous)
}

func TestAuthenticatorPrefersBearerToken(t *testing.T) {
	a := authenticator(&apitypes.AuthConfig{IdentityToken: "tok"})
	bearer, ok := a.(*authn.Bearer)
	assert.Assert(t, ok)
	assert.Equal(t, bearer.Token, "tok")
}

func TestAuthenticatorBasic(t *testing.T) {
	a := authenticator(&apitypes.AuthConfig{Username: "u", Password: "p"})
	basic, ok := a.(*authn.Basic)
	assert.Assert(t, ok)
	assert.Equal(t, basic.Username, "u")
	assert.Equal(t, basic.Password, "p")
}
