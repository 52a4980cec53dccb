package driver

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/glennswest/vlanfabric/pkg/network"
)

// SOAPPort is the NETCONF-over-SOAP listener on Comware switches.
const SOAPPort = 832

const netconfMessageID = "404"

// NetConfConfig configures a NetConf driver.
type NetConfConfig struct {
	Address            string
	OEM                string // namespace vendor, e.g. hp or h3c
	Username           string
	Password           string
	Schema             string
	Timeout            time.Duration
	InsecureSkipVerify bool

	// URL overrides <schema>://<address>:832/soap/netconf/.
	URL string
}

// NetConf implements network.DeviceDriver with NETCONF edit-config RPCs
// carried in SOAP envelopes. The hello exchange yields an AuthInfo token
// that authenticates later RPCs until the switch reports it invalid.
type NetConf struct {
	address  string
	oem      string
	username string
	password string
	url      string
	http     *http.Client
	log      *zap.SugaredLogger

	mu       sync.Mutex
	authInfo string
}

// NewNetConf returns a DeviceDriver speaking NETCONF over SOAP.
func NewNetConf(cfg NetConfConfig, log *zap.SugaredLogger) *NetConf {
	u := cfg.URL
	if u == "" {
		schema := cfg.Schema
		if schema == "" {
			schema = "https"
		}
		u = fmt.Sprintf("%s://%s:%d/soap/netconf/", schema, cfg.Address, SOAPPort)
	}
	oem := cfg.OEM
	if oem == "" {
		oem = "hp"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &NetConf{
		address:  cfg.Address,
		oem:      oem,
		username: cfg.Username,
		password: cfg.Password,
		url:      u,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec
			},
		},
		log: log.Named("netconf").With("device", cfg.Address),
	}
}

// ─── Envelopes ───────────────────────────────────────────────────────────────

var envelopes = template.Must(template.New("netconf").Funcs(template.FuncMap{"x": xmlText}).Parse(`
{{- define "auth" -}}
<env:Header>
  <auth:Authentication env:mustUnderstand="1" xmlns:auth="http://www.{{x .OEM}}.com/netconf/base:1.0">
    <auth:AuthInfo>{{x .AuthInfo}}</auth:AuthInfo>
    <auth:Language>en</auth:Language>
  </auth:Authentication>
</env:Header>
{{- end -}}

{{- define "hello" -}}
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Header>
    <auth:Authentication env:mustUnderstand="1" xmlns:auth="http://www.{{x .OEM}}.com/netconf/base:1.0">
      <auth:UserName>{{x .Username}}</auth:UserName>
      <auth:Password>{{x .Password}}</auth:Password>
    </auth:Authentication>
  </env:Header>
  <env:Body>
    <hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
      <capabilities><capability>urn:ietf:params:netconf:base:1.0</capability></capabilities>
    </hello>
  </env:Body>
</env:Envelope>
{{- end -}}

{{- define "edit" -}}
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  {{template "auth" .}}
  <env:Body>
    <rpc message-id="{{.MessageID}}" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
      <edit-config>
        <target><running/></target>
        <default-operation>merge</default-operation>
        <test-option>set</test-option>
        <error-option>continue-on-error</error-option>
        <config xmlns:xc="urn:ietf:params:xml:ns:netconf:base:1.0">
          <top xmlns="http://www.{{x .OEM}}.com/netconf/config:1.0">{{.Body}}</top>
        </config>
      </edit-config>
    </rpc>
  </env:Body>
</env:Envelope>
{{- end -}}

{{- define "close" -}}
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  {{template "auth" .}}
  <env:Body>
    <rpc message-id="{{.MessageID}}" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><close-session/></rpc>
  </env:Body>
</env:Envelope>
{{- end -}}

{{- define "vlans" -}}
<VLAN xc:operation="{{.Op}}"><VLANs>{{range .IDs}}<VLANID><ID>{{.}}</ID></VLANID>{{end}}</VLANs></VLAN>
{{- end -}}

{{- define "linktype" -}}
<Ifmgr><Interfaces>{{range .}}<Interface><IfIndex>{{x .}}</IfIndex><LinkType>2</LinkType></Interface>{{end}}</Interfaces></Ifmgr>
{{- end -}}

{{- define "trunks" -}}
<VLAN><TrunkInterfaces>{{range .}}<Interface><IfIndex>{{x .Port}}</IfIndex><PermitVlanList>{{.Permit}}</PermitVlanList></Interface>{{end}}</TrunkInterfaces></VLAN>
{{- end -}}
`))

func xmlText(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type envelopeData struct {
	OEM       string
	AuthInfo  string
	Username  string
	Password  string
	MessageID string
	Body      string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := envelopes.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// ─── Transport ───────────────────────────────────────────────────────────────

func (d *NetConf) post(ctx context.Context, msg string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, strings.NewReader(msg))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("soap request to %s: %w", d.address, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading soap response from %s: %w", d.address, err)
	}
	// SOAP faults come back as 500 with a body worth reading.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusInternalServerError {
		return nil, fmt.Errorf("soap request to %s: %s", d.address, resp.Status)
	}
	return data, nil
}

// soapReply holds the parts of a response the driver cares about.
type soapReply struct {
	AuthInfo string
	Fault    string
	OK       bool
}

func parseReply(data []byte) (soapReply, error) {
	var r soapReply
	dec := xml.NewDecoder(bytes.NewReader(data))
	var current string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return r, nil
		}
		if err != nil {
			return r, fmt.Errorf("parsing soap response: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
			if current == "ok" {
				r.OK = true
			}
		case xml.EndElement:
			current = ""
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch current {
			case "AuthInfo":
				r.AuthInfo = text
			case "faultstring":
				r.Fault = text
			}
		}
	}
}

func (d *NetConf) session(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.authInfo != "" {
		return d.authInfo, nil
	}

	msg, err := render("hello", envelopeData{OEM: d.oem, Username: d.username, Password: d.password})
	if err != nil {
		return "", err
	}
	data, err := d.post(ctx, msg)
	if err != nil {
		return "", err
	}
	reply, err := parseReply(data)
	if err != nil {
		return "", err
	}
	if reply.AuthInfo == "" {
		if reply.Fault != "" {
			return "", fmt.Errorf("hello to %s: %s", d.address, reply.Fault)
		}
		return "", fmt.Errorf("hello to %s: no AuthInfo in reply", d.address)
	}

	d.log.Debugw("session established")
	d.authInfo = reply.AuthInfo
	return d.authInfo, nil
}

func (d *NetConf) dropSession(stale string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.authInfo == stale {
		d.authInfo = ""
	}
}

var errInvalidSession = errors.New("invalid session")

// editConfig applies body inside an edit-config RPC, opening a new session
// once if the switch rejects the current one.
func (d *NetConf) editConfig(ctx context.Context, body string) error {
	err := d.editConfigOnce(ctx, body)
	if errors.Is(err, errInvalidSession) {
		d.log.Infow("session expired, sending hello again")
		err = d.editConfigOnce(ctx, body)
	}
	return err
}

func (d *NetConf) editConfigOnce(ctx context.Context, body string) error {
	auth, err := d.session(ctx)
	if err != nil {
		return err
	}

	msg, err := render("edit", envelopeData{OEM: d.oem, AuthInfo: auth, MessageID: netconfMessageID, Body: body})
	if err != nil {
		return err
	}
	data, err := d.post(ctx, msg)
	if err != nil {
		return err
	}
	reply, err := parseReply(data)
	if err != nil {
		return err
	}

	if reply.Fault == "Invalid session" {
		d.dropSession(auth)
		return errInvalidSession
	}
	if !reply.OK {
		if reply.Fault != "" {
			return fmt.Errorf("edit-config on %s: %s", d.address, reply.Fault)
		}
		return fmt.Errorf("edit-config on %s: reply without ok", d.address)
	}
	return nil
}

// ─── VLAN Operations ─────────────────────────────────────────────────────────

func (d *NetConf) vlanOp(ctx context.Context, op string, ids []int) error {
	body, err := render("vlans", struct {
		Op  string
		IDs []int
	}{op, ids})
	if err != nil {
		return err
	}
	return d.editConfig(ctx, body)
}

func (d *NetConf) CreateVLANs(ctx context.Context, ids []int, overlap bool) error {
	op := "merge"
	if overlap {
		op = "replace"
	}
	if err := d.vlanOp(ctx, op, ids); err != nil {
		return fmt.Errorf("creating vlans %s: %w", permitList(ids), err)
	}
	d.log.Debugw("vlans created", "vlans", permitList(ids), "operation", op)
	return nil
}

func (d *NetConf) DeleteVLANs(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	if err := d.vlanOp(ctx, "remove", ids); err != nil {
		return fmt.Errorf("deleting vlans %s: %w", permitList(ids), err)
	}
	return nil
}

// ─── Trunk Operations ────────────────────────────────────────────────────────

func (d *NetConf) ProgramTrunks(ctx context.Context, entries []network.TrunkEntry) error {
	ports, perms := trunkPorts(entries)
	if len(ports) == 0 {
		return nil
	}

	body, err := render("linktype", ports)
	if err != nil {
		return err
	}
	if err := d.editConfig(ctx, body); err != nil {
		return fmt.Errorf("setting trunk mode: %w", err)
	}

	type permit struct{ Port, Permit string }
	rows := make([]permit, len(ports))
	for i, p := range ports {
		rows[i] = permit{Port: p, Permit: permitList(perms[p])}
	}
	body, err = render("trunks", rows)
	if err != nil {
		return err
	}
	if err := d.editConfig(ctx, body); err != nil {
		return fmt.Errorf("setting permitted vlans: %w", err)
	}
	return nil
}

// ─── Introspection ───────────────────────────────────────────────────────────

func (d *NetConf) Address() string { return d.address }

func (d *NetConf) Backend() string { return "netconf" }

// ProbeAddr is the SOAP listener's host and port.
func (d *NetConf) ProbeAddr() string { return hostPort(d.url) }

// Close ends the NETCONF session if one is open.
func (d *NetConf) Close(ctx context.Context) error {
	d.mu.Lock()
	auth := d.authInfo
	d.authInfo = ""
	d.mu.Unlock()

	if auth == "" {
		return nil
	}
	msg, err := render("close", envelopeData{OEM: d.oem, AuthInfo: auth, MessageID: netconfMessageID})
	if err != nil {
		return err
	}
	_, err = d.post(ctx, msg)
	return err
}

// Ensure NetConf implements DeviceDriver at compile time.
var (
	_ network.DeviceDriver  = (*NetConf)(nil)
	_ network.SessionCloser = (*NetConf)(nil)
	_ network.Prober        = (*NetConf)(nil)
)

