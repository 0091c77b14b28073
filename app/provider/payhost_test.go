package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func soapReply(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ns2="http://www.paygate.co.za/PayHOST">` +
		`<SOAP-ENV:Body>` + body + `</SOAP-ENV:Body></SOAP-ENV:Envelope>`
}

func TestPayHostSinglePaymentReturnsRedirectParams(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		if action := r.Header.Get("SOAPAction"); action != "SinglePayment" {
			t.Errorf("unexpected soap action: %s", action)
		}
		_, _ = w.Write([]byte(soapReply(
			`<ns2:SinglePaymentResponse><ns2:WebPaymentResponse><ns2:Redirect>` +
				`<ns2:RedirectUrl>https://secure.paygate.co.za/payhost/process.trans</ns2:RedirectUrl>` +
				`<ns2:UrlParams><ns2:key>PAYGATE_ID</ns2:key><ns2:value>10011072130</ns2:value></ns2:UrlParams>` +
				`<ns2:UrlParams><ns2:key>PAY_REQUEST_ID</ns2:key><ns2:value>req-1</ns2:value></ns2:UrlParams>` +
				`<ns2:UrlParams><ns2:key>REFERENCE</ns2:key><ns2:value>71</ns2:value></ns2:UrlParams>` +
				`<ns2:UrlParams><ns2:key>CHECKSUM</ns2:key><ns2:value>abc</ns2:value></ns2:UrlParams>` +
				`</ns2:Redirect></ns2:WebPaymentResponse></ns2:SinglePaymentResponse>`,
		)))
	}))
	defer srv.Close()

	client := NewPayHostClient(PayHostConfig{PayGateID: "10011072130", Password: "test", APIURL: srv.URL})
	out, err := client.SinglePayment(context.Background(), &SinglePaymentInput{
		PayGateID:     "10011072130",
		EncryptionKey: "test",
		Reference:     "71",
		AmountCents:   10000,
		Currency:      "ZAR",
		FirstName:     "Jane",
		LastName:      "Doe",
		Vaulting:      true,
		VaultID:       "0a1b2c3d-0a1b-0a1b-0a1b-0a1b2c3d4e5f",

		DisableRecurring: true,
	})
	require.NoError(t, err)
	require.Equal(t, "https://secure.paygate.co.za/payhost/process.trans", out.RedirectURL)
	require.Len(t, out.UrlParams, 4)
	require.Equal(t, KeyValue{Key: "PAY_REQUEST_ID", Value: "req-1"}, out.UrlParams[1])

	require.Contains(t, received, `<SinglePaymentRequest xmlns="http://www.paygate.co.za/PayHOST">`)
	require.Contains(t, received, "<MerchantOrderId>71</MerchantOrderId>")
	require.Contains(t, received, "<Amount>10000</Amount>")
	require.Contains(t, received, "<Vault>true</Vault>")
	require.Contains(t, received, "<VaultId>0a1b2c3d-0a1b-0a1b-0a1b-0a1b2c3d4e5f</VaultId>")
	require.Contains(t, received, "<UserDefinedFields><key>disable_recurring</key><value>yes</value></UserDefinedFields>")
}

func TestPayHostSinglePaymentFaultIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(soapReply(
			`<SOAP-ENV:Fault><faultcode>SOAP-ENV:Server</faultcode><faultstring>Validation error</faultstring></SOAP-ENV:Fault>`,
		)))
	}))
	defer srv.Close()

	client := NewPayHostClient(PayHostConfig{APIURL: srv.URL})
	_, err := client.SinglePayment(context.Background(), &SinglePaymentInput{Reference: "1"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTransport))
	require.Contains(t, err.Error(), "Validation error")
}

func TestPayHostQueryReturnsVaultID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "<PayRequestId>req-9</PayRequestId>") {
			t.Errorf("unexpected query body: %s", body)
		}
		_, _ = w.Write([]byte(soapReply(
			`<ns2:SingleFollowUpResponse><ns2:QueryResponse><ns2:Status>` +
				`<ns2:TransactionId>3339</ns2:TransactionId>` +
				`<ns2:TransactionStatusCode>1</ns2:TransactionStatusCode>` +
				`<ns2:VaultId> 9f8e7d6c-1a2b-3c4d-5e6f-a1b2c3d4e5f6 </ns2:VaultId>` +
				`</ns2:Status></ns2:QueryResponse></ns2:SingleFollowUpResponse>`,
		)))
	}))
	defer srv.Close()

	client := NewPayHostClient(PayHostConfig{PayGateID: "1", Password: "k", APIURL: srv.URL})
	out, err := client.Query(context.Background(), "req-9")
	require.NoError(t, err)
	require.Equal(t, "3339", out.TransactionID)
	require.Equal(t, "9f8e7d6c-1a2b-3c4d-5e6f-a1b2c3d4e5f6", out.VaultID)
}

func TestPayHostUnreachableIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewPayHostClient(PayHostConfig{APIURL: url})
	_, err := client.Query(context.Background(), "req")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
