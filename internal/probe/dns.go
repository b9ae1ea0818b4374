package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/miekg/dns"
	"github.com/netprobe/fleet/internal/models"
)

// DnsQuery builds a recursion-desired DNS message for the configured
// record type and sends it over a fresh UDP socket to server — never
// through the local resolver cache, per spec.md §4.1.
func DnsQuery(ctx context.Context, task models.TaskConfig) models.RawDnsSample {
	base := models.SampleBase{TaskName: task.Name, Timestamp: uint64(time.Now().Unix()), TargetID: nilIfEmpty(task.Params.TargetID)}
	timeout := task.Timeout()
	domain := task.Params.Host

	msg := buildDNSQuery(domain, task.Params.RecordType)

	server := task.Params.Server
	if server == "" {
		server = "8.8.8.8:53"
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	client := &dns.Client{Timeout: timeout, Net: "udp"}
	start := time.Now()
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	elapsed := msSince(start)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawDnsSample{SampleBase: withError(base, timeoutError(timeout.Seconds())), DomainQueried: domain, CorrectResolution: task.Params.ExpectedIP == ""}
		}
		return models.RawDnsSample{SampleBase: withError(base, fmt.Sprintf("query failed: %v", err)), DomainQueried: domain}
	}
	return finishDNSSample(base, domain, task.Params.ExpectedIP, resp, elapsed)
}

// DnsQueryDoh performs the same query over DNS-over-HTTPS: the wire
// message is POSTed to serverURL with Content-Type application/dns-message.
func DnsQueryDoh(ctx context.Context, task models.TaskConfig) models.RawDnsSample {
	base := models.SampleBase{TaskName: task.Name, Timestamp: uint64(time.Now().Unix()), TargetID: nilIfEmpty(task.Params.TargetID)}
	timeout := task.Timeout()
	domain := task.Params.Host

	msg := buildDNSQuery(domain, task.Params.RecordType)
	packed, err := msg.Pack()
	if err != nil {
		return models.RawDnsSample{SampleBase: withError(base, fmt.Sprintf("failed to build query: %v", err)), DomainQueried: domain}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.Params.ServerURL, bytes.NewReader(packed))
	if err != nil {
		return models.RawDnsSample{SampleBase: withError(base, fmt.Sprintf("invalid doh url: %v", err)), DomainQueried: domain}
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")

	start := time.Now()
	resp, err := Client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawDnsSample{SampleBase: withError(base, timeoutError(timeout.Seconds())), DomainQueried: domain}
		}
		return models.RawDnsSample{SampleBase: withError(base, fmt.Sprintf("doh request failed: %v", err)), DomainQueried: domain}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	elapsed := msSince(start)
	if err != nil {
		return models.RawDnsSample{SampleBase: withError(base, fmt.Sprintf("doh body read failed: %v", err)), DomainQueried: domain}
	}
	if resp.StatusCode != http.StatusOK {
		return models.RawDnsSample{SampleBase: withError(base, fmt.Sprintf("doh non-200 status: %d", resp.StatusCode)), DomainQueried: domain}
	}

	respMsg := new(dns.Msg)
	if err := respMsg.Unpack(body); err != nil {
		return models.RawDnsSample{SampleBase: withError(base, fmt.Sprintf("failed to parse doh response: %v", err)), DomainQueried: domain}
	}
	return finishDNSSample(base, domain, task.Params.ExpectedIP, respMsg, elapsed)
}

func buildDNSQuery(domain string, recordType models.DnsRecordType) *dns.Msg {
	msg := new(dns.Msg)
	qtype := dns.TypeA
	switch recordType {
	case models.DnsAAAA:
		qtype = dns.TypeAAAA
	case models.DnsMX:
		qtype = dns.TypeMX
	case models.DnsCNAME:
		qtype = dns.TypeCNAME
	case models.DnsTXT:
		qtype = dns.TypeTXT
	case models.DnsNS:
		qtype = dns.TypeNS
	}
	msg.SetQuestion(dns.Fqdn(domain), qtype)
	msg.RecursionDesired = true
	return msg
}

// finishDNSSample parses answer records into printable form and checks
// expectedIP against the resolved addresses when one was configured.
func finishDNSSample(base models.SampleBase, domain, expectedIP string, resp *dns.Msg, elapsedMs float64) models.RawDnsSample {
	addrs := make([]string, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			addrs = append(addrs, v.A.String())
		case *dns.AAAA:
			addrs = append(addrs, v.AAAA.String())
		case *dns.MX:
			addrs = append(addrs, fmt.Sprintf("%d %s", v.Preference, v.Mx))
		case *dns.CNAME:
			addrs = append(addrs, v.Target)
		case *dns.NS:
			addrs = append(addrs, v.Ns)
		case *dns.TXT:
			txt := ""
			for _, t := range v.Txt {
				txt += t
			}
			addrs = append(addrs, txt)
		}
	}

	if resp.Rcode != dns.RcodeSuccess {
		return models.RawDnsSample{
			SampleBase:    withError(base, fmt.Sprintf("dns rcode %s", dns.RcodeToString[resp.Rcode])),
			DomainQueried: domain,
		}
	}

	correct := expectedIP == ""
	var resolvedIP *string
	if len(addrs) > 0 {
		resolvedIP = strPtr(addrs[0])
	}
	if expectedIP != "" {
		for _, a := range addrs {
			if a == expectedIP {
				correct = true
				break
			}
		}
	}

	sample := models.RawDnsSample{
		SampleBase:        withSuccess(base),
		QueryTimeMs:       floatPtr(elapsedMs),
		RecordCount:       intPtr(len(addrs)),
		ResolvedAddresses: addrs,
		DomainQueried:     domain,
		ResolvedIP:        resolvedIP,
		CorrectResolution: correct,
	}
	if expectedIP != "" {
		sample.ExpectedIP = strPtr(expectedIP)
	}
	return sample
}
