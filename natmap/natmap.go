// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

package natmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
)

// Stage identifies which step of port mapping establishment failed.
type Stage int

const (
	// StageDiscover is the SSDP search for gateway devices on the LAN.
	StageDiscover Stage = iota + 1

	// StageSelect is choosing a usable gateway among the responses.
	StageSelect

	// StageLocalAddress is determining this host's LAN address as seen
	// by the selected gateway.
	StageLocalAddress

	// StageAddMapping is the AddPortMapping request.
	StageAddMapping

	// StageExternalIP is the GetExternalIPAddress query.
	StageExternalIP
)

var stageNames = map[Stage]string{
	StageDiscover:     "gateway discovery",
	StageSelect:       "gateway selection",
	StageLocalAddress: "local address lookup",
	StageAddMapping:   "port mapping request",
	StageExternalIP:   "external address query",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage %d", int(s))
}

// MappingError reports a port mapping failure together with the stage
// that produced it. Callers can use errors.As to surface the stage
// distinctly instead of collapsing everything into one generic message:
//
//	var mappingErr *natmap.MappingError
//	if errors.As(err, &mappingErr) { ... mappingErr.Stage ... }
type MappingError struct {
	Stage Stage
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("port mapping failed during %s: %v", e.Stage, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// Mapping is an established external endpoint: the gateway's public
// address and the externally mapped TCP port.
type Mapping struct {
	ExternalIP   string
	ExternalPort uint16
}

// Config configures a [Mapper].
type Config struct {
	// ExternalPort is the external TCP port to map. The internal port
	// is always the same value.
	ExternalPort uint16

	// Description is the human-readable mapping tag shown in router
	// admin UIs.
	Description string

	// LeaseDuration bounds the mapping's lifetime on the gateway.
	// Zero means the mapping lasts until Release (or a router reboot).
	LeaseDuration time.Duration

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// igdClient is the slice of the generated WANIPConnection client surface
// the mapper uses. Both the v1 and v2 service clients satisfy it.
type igdClient interface {
	AddPortMappingCtx(ctx context.Context, remoteHost string, externalPort uint16, protocol string, internalPort uint16, internalClient string, enabled bool, description string, leaseDuration uint32) error
	DeletePortMappingCtx(ctx context.Context, remoteHost string, externalPort uint16, protocol string) error
	GetExternalIPAddressCtx(ctx context.Context) (string, error)
}

// Mapper talks to the local gateway to establish and release the
// hosting port mapping. Zero value is not usable; construct with [New].
type Mapper struct {
	config Config
	logger *slog.Logger

	client      igdClient
	gatewayHost string
	localIP     string
	mapped      bool
}

// New returns a Mapper for the given configuration.
func New(config Config) *Mapper {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{config: config, logger: logger}
}

// Establish discovers the gateway, maps the configured TCP port to this
// host, and returns the resulting external endpoint. Every failure is a
// *[MappingError] identifying the stage. Not reentrant: one established
// mapping per Mapper, one hosting session per machine.
func (m *Mapper) Establish(ctx context.Context) (Mapping, error) {
	client, gatewayHost, err := m.selectGateway(ctx)
	if err != nil {
		return Mapping{}, err
	}
	m.client = client
	m.gatewayHost = gatewayHost

	localIP, err := localAddressToward(gatewayHost)
	if err != nil {
		return Mapping{}, &MappingError{Stage: StageLocalAddress, Err: err}
	}
	m.localIP = localIP

	lease := uint32(m.config.LeaseDuration / time.Second)
	err = client.AddPortMappingCtx(ctx,
		"", m.config.ExternalPort, "TCP",
		m.config.ExternalPort, localIP,
		true, m.config.Description, lease,
	)
	if err != nil {
		return Mapping{}, &MappingError{Stage: StageAddMapping, Err: err}
	}
	m.mapped = true

	externalIP, err := client.GetExternalIPAddressCtx(ctx)
	if err != nil {
		return Mapping{}, &MappingError{Stage: StageExternalIP, Err: err}
	}

	m.logger.Info("port mapping established",
		"external_ip", externalIP,
		"external_port", m.config.ExternalPort,
		"internal_client", localIP,
		"gateway", gatewayHost,
	)
	return Mapping{ExternalIP: externalIP, ExternalPort: m.config.ExternalPort}, nil
}

// Release deletes the port mapping established by Establish. It is a
// no-op if no mapping was established.
func (m *Mapper) Release(ctx context.Context) error {
	if !m.mapped {
		return nil
	}
	m.mapped = false
	if err := m.client.DeletePortMappingCtx(ctx, "", m.config.ExternalPort, "TCP"); err != nil {
		return fmt.Errorf("deleting port mapping for %d/tcp: %w", m.config.ExternalPort, err)
	}
	m.logger.Info("port mapping released", "external_port", m.config.ExternalPort)
	return nil
}

// selectGateway searches the LAN for an IGD exposing a WANIPConnection
// service, preferring the v2 service, and returns the client along with
// the gateway's control URL host (used for the local address lookup).
func (m *Mapper) selectGateway(ctx context.Context) (igdClient, string, error) {
	var searchErrors []error

	v2Clients, errs, err := internetgateway2.NewWANIPConnection2ClientsCtx(ctx)
	if err != nil {
		return nil, "", &MappingError{Stage: StageDiscover, Err: err}
	}
	searchErrors = append(searchErrors, errs...)
	for _, client := range v2Clients {
		return client, client.Location.Host, nil
	}

	v1Clients, errs, err := internetgateway2.NewWANIPConnection1ClientsCtx(ctx)
	if err != nil {
		return nil, "", &MappingError{Stage: StageDiscover, Err: err}
	}
	searchErrors = append(searchErrors, errs...)
	for _, client := range v1Clients {
		return client, client.Location.Host, nil
	}

	selectErr := errors.New("no gateway with a WANIPConnection service responded")
	if len(searchErrors) > 0 {
		selectErr = fmt.Errorf("%v: %w", selectErr, errors.Join(searchErrors...))
	}
	return nil, "", &MappingError{Stage: StageSelect, Err: selectErr}
}

// localAddressToward determines the LAN address the OS would use to
// reach the gateway, by opening a UDP socket toward its control URL.
// No packets are sent; the kernel just picks the route.
func localAddressToward(gatewayHost string) (string, error) {
	conn, err := net.Dial("udp", gatewayHost)
	if err != nil {
		return "", fmt.Errorf("routing toward gateway %s: %w", gatewayHost, err)
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return localAddr.IP.String(), nil
}
