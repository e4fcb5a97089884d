package browser

import (
	"fmt"
	"net/url"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// stripProxyCredentials returns the proxy URL without userinfo, in the
// scheme://host:port form Chrome accepts for --proxy-server. Credentials
// are answered per page via CDP auth events instead.
func stripProxyCredentials(proxyURL string) string {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return proxyURL
	}
	u.User = nil
	return u.String()
}

// setPageProxyAuth installs a CDP fetch handler that answers proxy
// authentication challenges with the credentials embedded in proxyURL.
// It is a no-op when the URL carries no userinfo.
func setPageProxyAuth(page *rod.Page, proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}
	if u.User == nil {
		return nil
	}

	username := u.User.Username()
	password, _ := u.User.Password()

	err = proto.FetchEnable{
		HandleAuthRequests: true,
	}.Call(page)
	if err != nil {
		return fmt.Errorf("failed to enable fetch interception: %w", err)
	}

	go page.EachEvent(
		func(e *proto.FetchRequestPaused) {
			err := proto.FetchContinueRequest{RequestID: e.RequestID}.Call(page)
			if err != nil {
				log.Debug().Err(err).Msg("Failed to continue intercepted request")
			}
		},
		func(e *proto.FetchAuthRequired) {
			err := proto.FetchContinueWithAuth{
				RequestID: e.RequestID,
				AuthChallengeResponse: &proto.FetchAuthChallengeResponse{
					Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
					Username: username,
					Password: password,
				},
			}.Call(page)
			if err != nil {
				log.Debug().Err(err).Msg("Failed to answer proxy auth challenge")
			}
		},
	)()

	log.Debug().Str("proxy_user", username).Msg("Proxy authentication handler installed")
	return nil
}
