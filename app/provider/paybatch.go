package provider

import (
	"context"
	"encoding/xml"
	"strconv"
	"strings"
	"time"
)

type PayBatchConfig struct {
	PayBatchID  string
	Password    string
	APIURL      string
	NotifyURL   string
	HTTPTimeout time.Duration
}

type AuthOutput struct {
	Invalid  int
	UploadID string
	// InvalidLines holds the 1-based positions the processor rejected, in reported order.
	InvalidLines []int
}

type ConfirmOutput struct {
	Invalid int
}

type PayBatchQueryOutput struct {
	Reference     string
	DateCompleted string
	TransResults  []string
}

// PayBatchClient talks to the PayBatch SOAP endpoint. Calls are authenticated with HTTP basic
// auth using the batch id and secret.
type PayBatchClient struct {
	cfg    PayBatchConfig
	caller *soapCaller
}

func NewPayBatchClient(cfg PayBatchConfig) *PayBatchClient {
	client := newHTTPClient(cfg.HTTPTimeout).SetBasicAuth(cfg.PayBatchID, cfg.Password)
	return &PayBatchClient{
		cfg:    cfg,
		caller: &soapCaller{http: client, url: cfg.APIURL},
	}
}

// Auth uploads lines for validation. Each line is sent as one comma separated row.
func (c *PayBatchClient) Auth(ctx context.Context, reference string, lines [][]string) (*AuthOutput, error) {
	rows := make([]string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, strings.Join(line, ","))
	}

	request := authRequest{
		BatchReference:  reference,
		NotificationURL: c.cfg.NotifyURL,
		BatchData:       batchData{BatchLine: rows},
	}

	var response authResponse
	if err := c.caller.call(ctx, "Auth", request, &response); err != nil {
		return nil, err
	}

	out := &AuthOutput{
		Invalid:  response.Invalid,
		UploadID: strings.TrimSpace(response.UploadID),
	}
	for _, reason := range response.InvalidReason {
		line, err := strconv.Atoi(strings.TrimSpace(reason.Line))
		if err != nil {
			continue
		}
		out.InvalidLines = append(out.InvalidLines, line)
	}

	return out, nil
}

func (c *PayBatchClient) Confirm(ctx context.Context, uploadID string) (*ConfirmOutput, error) {
	var response confirmResponse
	if err := c.caller.call(ctx, "Confirm", confirmRequest{UploadID: uploadID}, &response); err != nil {
		return nil, err
	}
	return &ConfirmOutput{Invalid: response.Invalid}, nil
}

func (c *PayBatchClient) Query(ctx context.Context, uploadID string) (*PayBatchQueryOutput, error) {
	var response queryResponse
	if err := c.caller.call(ctx, "Query", queryRequest{UploadID: uploadID}, &response); err != nil {
		return nil, err
	}

	out := &PayBatchQueryOutput{
		Reference:     strings.TrimSpace(response.Reference),
		DateCompleted: strings.TrimSpace(response.DateCompleted),
	}
	for _, row := range response.TransResult {
		if row = strings.TrimSpace(row); row != "" {
			out.TransResults = append(out.TransResults, row)
		}
	}

	return out, nil
}

type authRequest struct {
	XMLName         xml.Name  `xml:"http://www.paygate.co.za/PayBATCH AuthRequest"`
	BatchReference  string    `xml:"BatchReference"`
	NotificationURL string    `xml:"NotificationUrl,omitempty"`
	BatchData       batchData `xml:"BatchData"`
}

type batchData struct {
	BatchLine []string `xml:"BatchLine"`
}

type authResponse struct {
	XMLName       xml.Name        `xml:"AuthResponse"`
	Invalid       int             `xml:"Invalid"`
	UploadID      string          `xml:"UploadID"`
	InvalidReason []invalidReason `xml:"InvalidReason"`
}

type invalidReason struct {
	Line   string `xml:"Line"`
	Reason string `xml:"Reason"`
}

type confirmRequest struct {
	XMLName  xml.Name `xml:"http://www.paygate.co.za/PayBATCH ConfirmRequest"`
	UploadID string   `xml:"UploadID"`
}

type confirmResponse struct {
	XMLName xml.Name `xml:"ConfirmResponse"`
	Invalid int      `xml:"Invalid"`
}

type queryRequest struct {
	XMLName  xml.Name `xml:"http://www.paygate.co.za/PayBATCH QueryRequest"`
	UploadID string   `xml:"UploadID"`
}

type queryResponse struct {
	XMLName       xml.Name `xml:"QueryResponse"`
	Reference     string   `xml:"Reference"`
	DateCompleted string   `xml:"DateCompleted"`
	TransResult   []string `xml:"TransResult"`
}
