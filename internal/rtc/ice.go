package rtc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ParseICEServers decodes an ICE server list from JSON, falling back to the
// public Google STUN server when the JSON is empty or malformed.
func ParseICEServers(iceJSON string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(iceJSON), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

// TwilioICEProvider mints short-lived TURN credentials through the Twilio
// tokens API. STUN alone is enough on open networks; TURN covers peers behind
// symmetric NAT.
type TwilioICEProvider struct {
	client *twilio.RestClient
}

// NewTwilioICEProvider builds a provider from account credentials.
func NewTwilioICEProvider(accountSID, authToken string) *TwilioICEProvider {
	return &TwilioICEProvider{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
	}
}

// Servers mints a fresh credential set and converts it to pion's format.
func (p *TwilioICEProvider) Servers(_ context.Context) ([]webrtc.ICEServer, error) {
	params := &twilioApi.CreateTokenParams{}
	params.SetTtl(3600)
	token, err := p.client.Api.CreateToken(params)
	if err != nil {
		return nil, fmt.Errorf("twilio create token: %w", err)
	}
	if token.IceServers == nil {
		return nil, fmt.Errorf("twilio token has no ice servers")
	}

	servers := make([]webrtc.ICEServer, 0, len(*token.IceServers))
	for _, s := range *token.IceServers {
		url := s.Urls
		if url == "" {
			url = s.Url
		}
		if url == "" {
			continue
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{url},
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("twilio token has no usable ice servers")
	}
	return servers, nil
}
