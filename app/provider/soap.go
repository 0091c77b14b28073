package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

type soapRequestEnvelope struct {
	XMLName xml.Name        `xml:"SOAP-ENV:Envelope"`
	NS      string          `xml:"xmlns:SOAP-ENV,attr"`
	Body    soapRequestBody `xml:"SOAP-ENV:Body"`
}

type soapRequestBody struct {
	Content interface{}
}

type soapResponseEnvelope struct {
	XMLName xml.Name         `xml:"Envelope"`
	Body    soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	Fault *soapFault `xml:"Fault"`
	Inner []byte     `xml:",innerxml"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type soapCaller struct {
	http *resty.Client
	url  string
}

// call posts request as the body of a SOAP envelope and decodes the body of the reply into response.
func (c *soapCaller) call(ctx context.Context, action string, request, response interface{}) error {
	payload, err := xml.Marshal(soapRequestEnvelope{
		NS:   soapEnvelopeNS,
		Body: soapRequestBody{Content: request},
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", action, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/xml; charset=utf-8").
		SetHeader("SOAPAction", action).
		SetBody(xml.Header + string(payload)).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransport, action, err)
	}

	var envelope soapResponseEnvelope
	if err := xml.Unmarshal(resp.Body(), &envelope); err != nil {
		if resp.IsError() {
			return fmt.Errorf("%w: %s: status=%d", ErrTransport, action, resp.StatusCode())
		}
		return fmt.Errorf("%w: %s: decode envelope: %v", ErrTransport, action, err)
	}
	if envelope.Body.Fault != nil {
		return fmt.Errorf(
			"%w: %s: soap fault %s: %s",
			ErrTransport,
			action,
			strings.TrimSpace(envelope.Body.Fault.Code),
			strings.TrimSpace(envelope.Body.Fault.String),
		)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s: status=%d", ErrTransport, action, resp.StatusCode())
	}

	if err := xml.Unmarshal(envelope.Body.Inner, response); err != nil {
		return fmt.Errorf("%w: %s: decode body: %v", ErrTransport, action, err)
	}
	return nil
}
