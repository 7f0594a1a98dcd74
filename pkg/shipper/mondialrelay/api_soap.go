package mondialrelay

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"
)

const serviceNamespace = "http://www.mondialrelay.fr/webservice/"

// SOAPAPIClient is the production implementation of APIClient using SOAP.
type SOAPAPIClient struct {
	endpoint   string
	httpClient *http.Client
}

// SOAPAPIClientConfig holds configuration for the SOAP client.
type SOAPAPIClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// NewSOAPAPIClient creates a new SOAP-based API client for production use.
func NewSOAPAPIClient(cfg SOAPAPIClientConfig) *SOAPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &SOAPAPIClient{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "?WSDL"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateLabel registers an expedition via WSI2_CreationEtiquette.
func (c *SOAPAPIClient) CreateLabel(ctx context.Context, creds Credentials, req *LabelRequest) (*LabelResponse, error) {
	p := labelParams(creds, req)
	body, err := buildEnvelope("WSI2_CreationEtiquette", labelSecurityFields, p, creds.PrivateKey, "Texte")
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var env soapEnvelope
	if err := c.call(ctx, "WSI2_CreationEtiquette", body, &env); err != nil {
		return nil, err
	}
	if env.Body.CreationEtiquette == nil {
		return nil, &APIError{Code: "PARSE_ERROR", Description: "No label data in response"}
	}

	res := env.Body.CreationEtiquette.Result
	if res.Stat != "0" {
		return nil, statError(res.Stat)
	}

	return &LabelResponse{
		Stat:          res.Stat,
		ExpeditionNum: res.ExpeditionNum,
		LabelURL:      res.URLEtiquette,
	}, nil
}

// TraceParcel retrieves tracing details via WSI2_TracingColisDetaille.
func (c *SOAPAPIClient) TraceParcel(ctx context.Context, creds Credentials, req *TraceRequest) (*TraceResponse, error) {
	p := tracingParams(creds, req)
	body, err := buildEnvelope("WSI2_TracingColisDetaille", tracingSecurityFields, p, creds.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var env soapEnvelope
	if err := c.call(ctx, "WSI2_TracingColisDetaille", body, &env); err != nil {
		return nil, err
	}
	if env.Body.TracingColisDetaille == nil {
		return nil, &APIError{Code: "PARSE_ERROR", Description: "No tracing data in response"}
	}

	res := env.Body.TracingColisDetaille.Result
	if !isTracingStat(res.Stat) {
		return nil, statError(res.Stat)
	}

	resp := &TraceResponse{
		Stat:       res.Stat,
		Label:      res.Libelle01,
		RelayLabel: res.RelaisLibelle,
		RelayNum:   res.RelaisNum,
	}
	for _, t := range res.Tracing {
		if t.Libelle == "" {
			continue
		}
		resp.Events = append(resp.Events, TraceEvent{
			Label:        t.Libelle,
			Date:         t.Date,
			Time:         t.Heure,
			Location:     t.Emplacement,
			RelayNum:     t.RelaisNum,
			RelayCountry: t.RelaisPays,
		})
	}
	return resp, nil
}

// SearchPickupPoints lists relay points via WSI4_PointRelais_Recherche.
func (c *SOAPAPIClient) SearchPickupPoints(ctx context.Context, creds Credentials, req *PickupSearchRequest) (*PickupSearchResponse, error) {
	p := pickupParams(creds, req)
	body, err := buildEnvelope("WSI4_PointRelais_Recherche", pickupSecurityFields, p, creds.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var env soapEnvelope
	if err := c.call(ctx, "WSI4_PointRelais_Recherche", body, &env); err != nil {
		return nil, err
	}
	if env.Body.PointRelaisRecherche == nil {
		return nil, &APIError{Code: "PARSE_ERROR", Description: "No pickup point data in response"}
	}

	res := env.Body.PointRelaisRecherche.Result
	if res.Stat != "0" {
		return nil, statError(res.Stat)
	}

	resp := &PickupSearchResponse{Stat: res.Stat}
	for _, d := range res.Points {
		resp.Points = append(resp.Points, RelayPoint{
			Num:       strings.TrimSpace(d.Num),
			Name:      strings.TrimSpace(d.LgAdr1),
			Name2:     strings.TrimSpace(d.LgAdr2),
			Street:    strings.TrimSpace(d.LgAdr3),
			Locality:  strings.TrimSpace(d.LgAdr4),
			Zip:       d.CP,
			City:      strings.TrimSpace(d.Ville),
			Country:   d.Pays,
			Latitude:  d.Latitude,
			Longitude: d.Longitude,
			Distance:  d.Distance,
			Hours: map[string][]string{
				"monday":    d.Lundi.Slots,
				"tuesday":   d.Mardi.Slots,
				"wednesday": d.Mercredi.Slots,
				"thursday":  d.Jeudi.Slots,
				"friday":    d.Vendredi.Slots,
				"saturday":  d.Samedi.Slots,
				"sunday":    d.Dimanche.Slots,
			},
		})
	}
	return resp, nil
}

// ============================================================================
// SOAP Request Helpers
// ============================================================================

func (c *SOAPAPIClient) call(ctx context.Context, action string, body []byte, env *soapEnvelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+serviceNamespace+action+`"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseSOAPError(resp.StatusCode, data)
	}

	if err := xml.Unmarshal(data, env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if env.Body.Fault != nil {
		return &APIError{Code: env.Body.Fault.Code, Description: env.Body.Fault.String, StatusCode: resp.StatusCode}
	}
	return nil
}

func parseSOAPError(status int, body []byte) error {
	var env soapEnvelope
	if err := xml.Unmarshal(body, &env); err == nil && env.Body.Fault != nil {
		return &APIError{
			Code:        env.Body.Fault.Code,
			Description: env.Body.Fault.String,
			StatusCode:  status,
		}
	}

	return &APIError{
		Code:        fmt.Sprintf("HTTP_%d", status),
		Description: string(body),
		StatusCode:  status,
	}
}

// ============================================================================
// SOAP Request Builders
// ============================================================================

const soapEnvelopeTemplate = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <{{.Method}} xmlns="{{.Namespace}}">
{{- range .Params}}
      <{{.Name}}>{{escape .Value}}</{{.Name}}>
{{- end}}
    </{{.Method}}>
  </soap:Body>
</soap:Envelope>`

var envelopeTmpl = template.Must(template.New("envelope").Funcs(template.FuncMap{
	"escape": func(s string) (string, error) {
		var buf bytes.Buffer
		if err := xml.EscapeText(&buf, []byte(s)); err != nil {
			return "", err
		}
		return buf.String(), nil
	},
}).Parse(soapEnvelopeTemplate))

type soapParam struct {
	Name  string
	Value string
}

// buildEnvelope renders the signed fields in contract order, then Security,
// then any unsigned trailing fields.
func buildEnvelope(method string, fields []string, p params, privateKey string, unsigned ...string) ([]byte, error) {
	ordered := make([]soapParam, 0, len(fields)+1+len(unsigned))
	for _, f := range fields {
		ordered = append(ordered, soapParam{Name: f, Value: p[f]})
	}
	ordered = append(ordered, soapParam{Name: "Security", Value: SecurityHash(p.signed(fields), privateKey)})
	for _, f := range unsigned {
		ordered = append(ordered, soapParam{Name: f, Value: p[f]})
	}

	data := struct {
		Method    string
		Namespace string
		Params    []soapParam
	}{method, serviceNamespace, ordered}

	var buf bytes.Buffer
	if err := envelopeTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ============================================================================
// SOAP Response Parsers - XML Types
// ============================================================================

type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    soapBody `xml:"Body"`
}

type soapBody struct {
	Fault                *soapFault                    `xml:"Fault,omitempty"`
	CreationEtiquette    *creationEtiquetteResponse    `xml:"WSI2_CreationEtiquetteResponse,omitempty"`
	TracingColisDetaille *tracingColisDetailleResponse `xml:"WSI2_TracingColisDetailleResponse,omitempty"`
	PointRelaisRecherche *pointRelaisRechercheResponse `xml:"WSI4_PointRelais_RechercheResponse,omitempty"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type creationEtiquetteResponse struct {
	Result struct {
		Stat          string `xml:"STAT"`
		ExpeditionNum string `xml:"ExpeditionNum"`
		URLEtiquette  string `xml:"URL_Etiquette"`
	} `xml:"WSI2_CreationEtiquetteResult"`
}

type tracingColisDetailleResponse struct {
	Result struct {
		Stat          string         `xml:"STAT"`
		Libelle01     string         `xml:"Libelle01"`
		RelaisLibelle string         `xml:"Relais_Libelle"`
		RelaisNum     string         `xml:"Relais_Num"`
		Tracing       []tracingEntry `xml:"Tracing>ret_WSI2_sub_TracingColisDetaille"`
	} `xml:"WSI2_TracingColisDetailleResult"`
}

type tracingEntry struct {
	Libelle     string `xml:"Libelle"`
	Date        string `xml:"Date"`
	Heure       string `xml:"Heure"`
	Emplacement string `xml:"Emplacement"`
	RelaisNum   string `xml:"Relais_Num"`
	RelaisPays  string `xml:"Relais_Pays"`
}

type pointRelaisRechercheResponse struct {
	Result struct {
		Stat   string              `xml:"STAT"`
		Points []pointRelaisDetail `xml:"PointsRelais>PointRelais_Details"`
	} `xml:"WSI4_PointRelais_RechercheResult"`
}

type pointRelaisDetail struct {
	Num       string       `xml:"Num"`
	LgAdr1    string       `xml:"LgAdr1"`
	LgAdr2    string       `xml:"LgAdr2"`
	LgAdr3    string       `xml:"LgAdr3"`
	LgAdr4    string       `xml:"LgAdr4"`
	CP        string       `xml:"CP"`
	Ville     string       `xml:"Ville"`
	Pays      string       `xml:"Pays"`
	Latitude  string       `xml:"Latitude"`
	Longitude string       `xml:"Longitude"`
	Distance  string       `xml:"Distance"`
	Lundi     openingHours `xml:"Horaires_Lundi"`
	Mardi     openingHours `xml:"Horaires_Mardi"`
	Mercredi  openingHours `xml:"Horaires_Mercredi"`
	Jeudi     openingHours `xml:"Horaires_Jeudi"`
	Vendredi  openingHours `xml:"Horaires_Vendredi"`
	Samedi    openingHours `xml:"Horaires_Samedi"`
	Dimanche  openingHours `xml:"Horaires_Dimanche"`
}

type openingHours struct {
	Slots []string `xml:"string"`
}

func isTracingStat(stat string) bool {
	switch stat {
	case "80", "81", "82", "83":
		return true
	}
	return false
}

// Ensure SOAPAPIClient implements APIClient interface
var _ APIClient = (*SOAPAPIClient)(nil)
