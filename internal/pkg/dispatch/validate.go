package dispatch

import (
	"fmt"
	"net"
	"net/url"

	"github.com/vidmill/vidmill/internal/pkg/messages"
	"github.com/vidmill/vidmill/internal/pkg/utils"
)

const minSecretLen = 32

var lookupIPFunc = net.LookupIP

func validateMessage(msg *messages.EncodeMessage) error {
	if msg.JobID == "" {
		return fmt.Errorf("no jobId")
	}
	if msg.VideoID == "" {
		return fmt.Errorf("no videoId")
	}
	if len(msg.Qualities) == 0 {
		return fmt.Errorf("no qualities")
	}
	for _, p := range []string{msg.Source.Path, msg.Output.BasePath, msg.Thumbnail.Path} {
		if err := utils.ValidateObjectPath(p); err != nil {
			return err
		}
	}
	return validateCallback(msg.Callback.WebhookURL, msg.Callback.WebhookSecret)
}

func validateCallback(webhookURL, secret string) error {
	if len(secret) < minSecretLen {
		return fmt.Errorf("webhook secret shorter than %d chars", minSecretLen)
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("can't parse webhook url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook url is not https")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("no webhook host")
	}
	if host == "localhost" {
		return fmt.Errorf("webhook host resolves to loopback")
	}
	if ip := net.ParseIP(host); ip != nil {
		if isPrivate(ip) {
			return fmt.Errorf("webhook host '%s' is private", host)
		}
		return nil
	}
	ips, err := lookupIPFunc(host)
	if err != nil {
		return fmt.Errorf("can't resolve webhook host '%s': %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("can't resolve webhook host '%s'", host)
	}
	for _, rip := range ips {
		if isPrivate(rip) {
			return fmt.Errorf("webhook host '%s' resolves to private address %s", host, rip)
		}
	}
	return nil
}

func isPrivate(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
