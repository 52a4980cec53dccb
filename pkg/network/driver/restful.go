package driver

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/glennswest/vlanfabric/pkg/network"
)

// RestfulConfig configures a Restful driver.
type RestfulConfig struct {
	Address            string
	Username           string
	Password           string
	Schema             string // https or http
	Timeout            time.Duration
	InsecureSkipVerify bool

	// BaseURL overrides <schema>://<address>/api/v1.
	BaseURL string
}

// Restful implements network.DeviceDriver over the switch REST API. A login
// token is fetched lazily and renewed when the switch answers 401.
type Restful struct {
	address  string
	username string
	password string
	baseURL  string
	http     *http.Client
	log      *zap.SugaredLogger

	mu    sync.Mutex
	token string
}

// NewRestful returns a DeviceDriver backed by the switch REST API.
func NewRestful(cfg RestfulConfig, log *zap.SugaredLogger) *Restful {
	base := cfg.BaseURL
	if base == "" {
		schema := cfg.Schema
		if schema == "" {
			schema = "https"
		}
		base = fmt.Sprintf("%s://%s/api/v1", schema, cfg.Address)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Restful{
		address:  cfg.Address,
		username: cfg.Username,
		password: cfg.Password,
		baseURL:  base,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec
			},
		},
		log: log.Named("restful").With("device", cfg.Address),
	}
}

// ─── Session ─────────────────────────────────────────────────────────────────

type tokenResponse struct {
	TokenID string `json:"token-id"`
}

func (d *Restful) login(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/tokens", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(d.username, d.password)
	req.Header.Set("Accept", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("login to %s: %w", d.address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login to %s: %s: %s", d.address, resp.Status, bytes.TrimSpace(body))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token from %s: %w", d.address, err)
	}
	if tok.TokenID == "" {
		return "", fmt.Errorf("login to %s: empty token", d.address)
	}
	d.log.Debugw("session established")
	return tok.TokenID, nil
}

func (d *Restful) sessionToken(ctx context.Context, renew bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.token != "" && !renew {
		return d.token, nil
	}
	tok, err := d.login(ctx)
	if err != nil {
		return "", err
	}
	d.token = tok
	return tok, nil
}

var errUnauthorized = errors.New("unauthorized")

func (d *Restful) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	out, err := d.doOnce(ctx, method, path, body, false)
	if errors.Is(err, errUnauthorized) {
		d.log.Infow("session expired, logging in again")
		out, err = d.doOnce(ctx, method, path, body, true)
		if errors.Is(err, errUnauthorized) {
			return nil, fmt.Errorf("%s %s on %s: %w", method, path, d.address, err)
		}
	}
	return out, err
}

func (d *Restful) doOnce(ctx context.Context, method, path string, body any, renew bool) ([]byte, error) {
	tok, err := d.sessionToken(ctx, renew)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+"/"+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Auth-Token", tok)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s on %s: %w", method, path, d.address, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", d.address, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errUnauthorized
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s on %s: %s: %s", method, path, d.address, resp.Status, bytes.TrimSpace(data))
	}
	return data, nil
}

// indexed builds a table path addressed by one key, e.g.
// VLAN/VLANs?index=ID=10.
func indexed(table, key, value string) string {
	return table + "?index=" + key + "=" + url.QueryEscape(value)
}

// ─── VLAN Operations ─────────────────────────────────────────────────────────

type vlanBody struct {
	ID int `json:"ID"`
}

func (d *Restful) CreateVLANs(ctx context.Context, ids []int, overlap bool) error {
	for _, id := range ids {
		if _, err := d.do(ctx, http.MethodPut, indexed("VLAN/VLANs", "ID", strconv.Itoa(id)), vlanBody{ID: id}); err != nil {
			return fmt.Errorf("creating vlan %d: %w", id, err)
		}
	}
	if !overlap {
		return nil
	}

	existing, err := d.listVLANs(ctx)
	if err != nil {
		return err
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var stale []int
	for _, id := range existing {
		if !want[id] && id != defaultVLAN {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		d.log.Infow("removing vlans outside the requested set", "vlans", permitList(stale))
	}
	return d.DeleteVLANs(ctx, stale)
}

func (d *Restful) listVLANs(ctx context.Context) ([]int, error) {
	data, err := d.do(ctx, http.MethodGet, "VLAN/VLANs", nil)
	if err != nil {
		return nil, fmt.Errorf("listing vlans: %w", err)
	}

	var resp struct {
		VLANs []vlanBody `json:"VLANs"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding vlan list from %s: %w", d.address, err)
	}

	out := make([]int, len(resp.VLANs))
	for i, v := range resp.VLANs {
		out[i] = v.ID
	}
	return out, nil
}

func (d *Restful) DeleteVLANs(ctx context.Context, ids []int) error {
	for _, id := range ids {
		if _, err := d.do(ctx, http.MethodDelete, indexed("VLAN/VLANs", "ID", strconv.Itoa(id)), nil); err != nil {
			return fmt.Errorf("deleting vlan %d: %w", id, err)
		}
	}
	return nil
}

// ─── Trunk Operations ────────────────────────────────────────────────────────

type linkTypeBody struct {
	IfIndex   string `json:"IfIndex"`
	LinkType  int    `json:"LinkType"`
	PortLayer int    `json:"PortLayer"`
}

type trunkBody struct {
	IfIndex        string `json:"IfIndex"`
	PermitVlanList string `json:"PermitVlanList"`
}

const (
	linkTypeTrunk = 2
	portLayer2    = 1
)

func (d *Restful) ProgramTrunks(ctx context.Context, entries []network.TrunkEntry) error {
	ports, perms := trunkPorts(entries)

	for _, p := range ports {
		if _, err := d.do(ctx, http.MethodPut, indexed("Ifmgr/Interfaces", "IfIndex", p),
			linkTypeBody{IfIndex: p, LinkType: linkTypeTrunk, PortLayer: portLayer2}); err != nil {
			return fmt.Errorf("setting trunk mode on %s: %w", p, err)
		}
	}

	for _, p := range ports {
		if _, err := d.do(ctx, http.MethodPut, indexed("VLAN/TrunkInterfaces", "IfIndex", p),
			trunkBody{IfIndex: p, PermitVlanList: permitList(perms[p])}); err != nil {
			return fmt.Errorf("setting permitted vlans on %s: %w", p, err)
		}
	}
	return nil
}

// ─── Introspection ───────────────────────────────────────────────────────────

func (d *Restful) Address() string { return d.address }

// ProbeAddr is the REST endpoint's host and port.
func (d *Restful) ProbeAddr() string { return hostPort(d.baseURL) }

func (d *Restful) Backend() string { return "restful" }

// Close drops the session token.
func (d *Restful) Close(ctx context.Context) error {
	d.mu.Lock()
	tok := d.token
	d.token = ""
	d.mu.Unlock()

	if tok == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, d.baseURL+"/tokens/"+url.PathEscape(tok), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", tok)
	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("logout from %s: %w", d.address, err)
	}
	resp.Body.Close()
	return nil
}

// Ensure Restful implements DeviceDriver at compile time.
var (
	_ network.DeviceDriver  = (*Restful)(nil)
	_ network.SessionCloser = (*Restful)(nil)
	_ network.Prober        = (*Restful)(nil)
)
