package explorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFragment(t *testing.T) {
	tests := []struct {
		fragment string
		want     Route
	}{
		{fragment: "", want: HomeRoute},
		{fragment: "#", want: HomeRoute},
		{fragment: "tx/abc123", want: TransactionRoute("abc123")},
		{fragment: "#tx/abc123", want: TransactionRoute("abc123")},
		{fragment: "block/00ff", want: BlockRoute("00ff")},
		{fragment: "address/DAddr", want: AddressRoute("DAddr")},
		{fragment: "tx", want: NotFoundRoute},
		{fragment: "block/", want: NotFoundRoute},
		{fragment: "block/   ", want: NotFoundRoute},
		{fragment: "tx/a/b", want: NotFoundRoute},
		{fragment: "wallet/abc", want: NotFoundRoute},
		{fragment: "TX/abc", want: NotFoundRoute},
		{fragment: "home", want: NotFoundRoute},
	}

	for _, tt := range tests {
		t.Run(tt.fragment, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFragment(tt.fragment))
		})
	}
}

func TestRoute_FragmentRoundTrip(t *testing.T) {
	for _, r := range []Route{TransactionRoute("abc"), BlockRoute("def"), AddressRoute("1xyz")} {
		assert.Equal(t, r, ParseFragment(r.Fragment()))
	}
	assert.Equal(t, "", HomeRoute.Fragment())
	assert.Equal(t, "", NotFoundRoute.Fragment())
	assert.Equal(t, "/tx/abc", TransactionRoute("abc").Path())
	assert.Equal(t, "/", HomeRoute.Path())
}

func TestMemoryHistory(t *testing.T) {
	h := NewMemoryHistory("tx/one")
	assert.Equal(t, "#tx/one", h.Fragment())

	h.Push("#block/two")
	h.Push("")
	assert.Equal(t, "", h.Fragment())
	assert.Equal(t, 3, h.Len())

	f, ok := h.Back()
	assert.True(t, ok)
	assert.Equal(t, "#block/two", f)

	// pushing after going back drops the forward entry
	h.Push("address/three")
	assert.Equal(t, 3, h.Len())

	h.Back()
	h.Back()
	f, ok = h.Back()
	assert.False(t, ok)
	assert.Equal(t, "#tx/one", f)
}
