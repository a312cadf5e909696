// SPDX-License-Identifier: BSD-3-Clause

package quicdoq

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/require"
)

func TestQUICDialerSplitHostPortFailure(t *testing.T) {
	d := &QUICDialer{Resolver: &netstub.FuncResolver{}}
	_, err := d.DialDoQ(context.Background(), fakeAddr("bad-address"), "example.com")
	require.Error(t, err)
}

func TestQUICDialerLookupHostFailure(t *testing.T) {
	expectedErr := errors.New("lookup failed")
	d := &QUICDialer{
		Resolver: &netstub.FuncResolver{
			LookupHostFunc: func(context.Context, string) ([]string, error) {
				return nil, expectedErr
			},
		},
	}
	_, err := d.DialDoQ(context.Background(), fakeAddr("example.com:853"), "example.com")
	require.ErrorIs(t, err, expectedErr)
}

func TestQUICDialerListenPacketFailure(t *testing.T) {
	expectedErr := errors.New("listen failed")
	d := &QUICDialer{
		ListenConfig: listenConfigFunc(func(context.Context, string, string) (net.PacketConn, error) {
			return nil, expectedErr
		}),
		Resolver: &netstub.FuncResolver{
			LookupHostFunc: func(context.Context, string) ([]string, error) {
				return []string{"203.0.113.1", "203.0.113.2"}, nil
			},
		},
	}
	// Every resolved address must be tried, and every per-address error
	// must surface in the joined result.
	_, err := d.DialDoQ(context.Background(), fakeAddr("example.com:853"), "example.com")
	require.ErrorIs(t, err, expectedErr)
}

// listenConfigFunc adapts a function to [QUICListenConfig].
type listenConfigFunc func(ctx context.Context, network, address string) (net.PacketConn, error)

func (f listenConfigFunc) ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error) {
	return f(ctx, network, address)
}
