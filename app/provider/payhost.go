package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

type PayHostConfig struct {
	PayGateID   string
	Password    string
	APIURL      string
	HTTPTimeout time.Duration
}

// SinglePaymentInput is the wire form of one hosted card payment request.
type SinglePaymentInput struct {
	PayGateID     string
	EncryptionKey string
	Reference     string
	AmountCents   int64
	Currency      string
	TransDate     string
	Locale        string
	FirstName     string
	LastName      string
	Email         string
	CustomerTitle string
	Country       string
	ReturnURL     string
	Vaulting      bool
	VaultID       string

	// Sent as the disable_recurring user defined field.
	DisableRecurring bool
}

type SinglePaymentOutput struct {
	RedirectURL string
	UrlParams   []KeyValue

	// Set when the gateway answered with a status instead of a redirect.
	StatusCode        string
	ResultDescription string
}

type PayHostQueryOutput struct {
	TransactionID         string
	TransactionStatusCode string
	VaultID               string
}

type PayHostClient struct {
	cfg    PayHostConfig
	caller *soapCaller
}

func NewPayHostClient(cfg PayHostConfig) *PayHostClient {
	return &PayHostClient{
		cfg: cfg,
		caller: &soapCaller{
			http: newHTTPClient(cfg.HTTPTimeout),
			url:  cfg.APIURL,
		},
	}
}

func (c *PayHostClient) SinglePayment(ctx context.Context, input *SinglePaymentInput) (*SinglePaymentOutput, error) {
	request := singlePaymentRequest{
		WebPaymentRequest: webPaymentRequest{
			Account: payHostAccount{
				PayGateID: input.PayGateID,
				Password:  input.EncryptionKey,
			},
			Customer: payHostCustomer{
				Title:     input.CustomerTitle,
				FirstName: input.FirstName,
				LastName:  input.LastName,
				Email:     input.Email,
			},
			VaultID: input.VaultID,
			Redirect: payHostRedirect{ReturnURL: input.ReturnURL},
			Order: payHostOrder{
				MerchantOrderID: input.Reference,
				Currency:        input.Currency,
				Amount:          input.AmountCents,
				TransactionDate: input.TransDate,
				BillingDetails: payHostBillingDetails{
					Customer: payHostCustomer{
						Title:     input.CustomerTitle,
						FirstName: input.FirstName,
						LastName:  input.LastName,
						Email:     input.Email,
					},
					Address: payHostAddress{Country: input.Country},
				},
				Locale: input.Locale,
			},
			UserDefinedFields: []payHostKeyValue{
				{Key: "disable_recurring", Value: yesNo(input.DisableRecurring)},
			},
		},
	}
	if input.Vaulting {
		vault := true
		request.WebPaymentRequest.Vault = &vault
	}

	var response singlePaymentResponse
	if err := c.caller.call(ctx, "SinglePayment", request, &response); err != nil {
		return nil, err
	}

	out := &SinglePaymentOutput{}
	web := response.WebPaymentResponse
	if web.Redirect != nil {
		out.RedirectURL = strings.TrimSpace(web.Redirect.RedirectURL)
		for _, p := range web.Redirect.UrlParams {
			out.UrlParams = append(out.UrlParams, KeyValue{Key: p.Key, Value: p.Value})
		}
	}
	if web.Status != nil {
		out.StatusCode = web.Status.StatusName
		out.ResultDescription = web.Status.ResultDescription
	}

	return out, nil
}

// Query fetches the outcome of a hosted payment, including the vault id issued for the card.
func (c *PayHostClient) Query(ctx context.Context, payRequestID string) (*PayHostQueryOutput, error) {
	request := singleFollowUpRequest{
		QueryRequest: payHostQueryRequest{
			Account: payHostAccount{
				PayGateID: c.cfg.PayGateID,
				Password:  c.cfg.Password,
			},
			PayRequestID: payRequestID,
		},
	}

	var response singleFollowUpResponse
	if err := c.caller.call(ctx, "SingleFollowUp", request, &response); err != nil {
		return nil, err
	}

	status := response.QueryResponse.Status
	if status == nil {
		return nil, fmt.Errorf("%w: SingleFollowUp: response has no status", ErrTransport)
	}

	return &PayHostQueryOutput{
		TransactionID:         strings.TrimSpace(status.TransactionID),
		TransactionStatusCode: strings.TrimSpace(status.TransactionStatusCode),
		VaultID:               strings.TrimSpace(status.VaultID),
	}, nil
}

type singlePaymentRequest struct {
	XMLName           xml.Name          `xml:"http://www.paygate.co.za/PayHOST SinglePaymentRequest"`
	WebPaymentRequest webPaymentRequest `xml:"WebPaymentRequest"`
}

type webPaymentRequest struct {
	Account  payHostAccount  `xml:"Account"`
	Customer payHostCustomer `xml:"Customer"`
	Vault    *bool           `xml:"Vault,omitempty"`
	VaultID  string          `xml:"VaultId,omitempty"`
	Redirect payHostRedirect `xml:"Redirect"`
	Order    payHostOrder    `xml:"Order"`

	UserDefinedFields []payHostKeyValue `xml:"UserDefinedFields,omitempty"`
}

type payHostAccount struct {
	PayGateID string `xml:"PayGateId"`
	Password  string `xml:"Password"`
}

type payHostCustomer struct {
	Title     string `xml:"Title,omitempty"`
	FirstName string `xml:"FirstName"`
	LastName  string `xml:"LastName"`
	Email     string `xml:"Email"`
}

type payHostRedirect struct {
	ReturnURL string `xml:"ReturnUrl"`
}

type payHostOrder struct {
	MerchantOrderID string                `xml:"MerchantOrderId"`
	Currency        string                `xml:"Currency"`
	Amount          int64                 `xml:"Amount"`
	TransactionDate string                `xml:"TransactionDate"`
	BillingDetails  payHostBillingDetails `xml:"BillingDetails"`
	Locale          string                `xml:"Locale"`
}

type payHostBillingDetails struct {
	Customer payHostCustomer `xml:"Customer"`
	Address  payHostAddress  `xml:"Address"`
}

type payHostAddress struct {
	Country string `xml:"Country"`
}

type singlePaymentResponse struct {
	XMLName            xml.Name           `xml:"SinglePaymentResponse"`
	WebPaymentResponse webPaymentResponse `xml:"WebPaymentResponse"`
}

type webPaymentResponse struct {
	Redirect *payHostRedirectResponse `xml:"Redirect"`
	Status   *payHostStatus           `xml:"Status"`
}

type payHostRedirectResponse struct {
	RedirectURL string            `xml:"RedirectUrl"`
	UrlParams   []payHostKeyValue `xml:"UrlParams"`
}

type payHostKeyValue struct {
	Key   string `xml:"key"`
	Value string `xml:"value"`
}

type payHostStatus struct {
	TransactionID         string `xml:"TransactionId"`
	StatusName            string `xml:"StatusName"`
	TransactionStatusCode string `xml:"TransactionStatusCode"`
	ResultDescription     string `xml:"ResultDescription"`
	VaultID               string `xml:"VaultId"`
}

type singleFollowUpRequest struct {
	XMLName      xml.Name            `xml:"http://www.paygate.co.za/PayHOST SingleFollowUpRequest"`
	QueryRequest payHostQueryRequest `xml:"QueryRequest"`
}

type payHostQueryRequest struct {
	Account      payHostAccount `xml:"Account"`
	PayRequestID string         `xml:"PayRequestId"`
}

type singleFollowUpResponse struct {
	XMLName       xml.Name             `xml:"SingleFollowUpResponse"`
	QueryResponse payHostQueryResponse `xml:"QueryResponse"`
}

type payHostQueryResponse struct {
	Status *payHostStatus `xml:"Status"`
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
