package probe

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/netprobe/fleet/internal/models"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const icmpTTL = 255

// Ping resolves host (shuffling multiple addresses for load spreading),
// tries each in turn, and reports the RTT of the first successful echo.
// If every address fails, the last error and the first attempted IP are
// reported. The whole operation — resolve plus every echo attempt — is
// bounded by a single outer timeout.
func Ping(ctx context.Context, task models.TaskConfig) models.RawPingSample {
	base := models.SampleBase{TaskName: task.Name, Timestamp: uint64(time.Now().Unix()), TargetID: nilIfEmpty(task.Params.TargetID)}
	timeout := task.Timeout()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	host := task.Params.Host
	var domain *string
	ips, err := resolveHost(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			return failPing(base, timeoutError(timeout.Seconds()), "", nil)
		}
		return failPing(base, fmt.Sprintf("resolve failed: %v", err), "", nil)
	}
	if len(ips) == 0 {
		return failPing(base, "resolve returned no addresses", "", nil)
	}
	if len(ips) > 1 || net.ParseIP(host) == nil {
		domain = strPtr(host)
	}

	rand.Shuffle(len(ips), func(i, j int) { ips[i], ips[j] = ips[j], ips[i] })

	var lastErr error
	firstIP := ips[0].String()
	for i, ip := range ips {
		rtt, err := pingOnce(ctx, ip)
		if err == nil {
			return models.RawPingSample{
				SampleBase: withSuccess(base),
				RttMs:      floatPtr(rtt),
				IPAddress:  ip.String(),
				Domain:     domain,
			}
		}
		lastErr = err
		if ctx.Err() != nil {
			return failPing(base, timeoutError(timeout.Seconds()), "", domain)
		}
		if i == len(ips)-1 {
			break
		}
	}
	return failPing(base, fmt.Sprintf("ping failed: %v", lastErr), firstIP, domain)
}

func failPing(base models.SampleBase, errMsg, ip string, domain *string) models.RawPingSample {
	return models.RawPingSample{
		SampleBase: withError(base, errMsg),
		IPAddress:  ip,
		Domain:     domain,
	}
}

func resolveHost(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	resolver := &net.Resolver{}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

// pingOnce sends exactly one ICMP echo with TTL 255 and waits for the reply.
func pingOnce(ctx context.Context, ip net.IP) (float64, error) {
	network := "ip4:icmp"
	proto := 1 // ICMPv4
	if ip.To4() == nil {
		network = "ip6:ipv6-icmp"
		proto = 58 // ICMPv6
	}

	conn, err := icmp.ListenPacket(network, "")
	if err != nil {
		return 0, fmt.Errorf("cannot initiate ICMP socket — try running with raised capabilities: %w", err)
	}
	defer conn.Close()

	if p4 := conn.IPv4PacketConn(); p4 != nil {
		_ = p4.SetTTL(icmpTTL)
	} else if p6 := conn.IPv6PacketConn(); p6 != nil {
		_ = p6.SetHopLimit(icmpTTL)
	}

	id := rand.Intn(0xffff)
	var msgType icmp.Type = ipv4.ICMPTypeEcho
	if proto == 58 {
		msgType = ipv6.ICMPTypeEchoRequest
	}
	wm := icmp.Message{
		Type: msgType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  1,
			Data: []byte("netprobe-ping"),
		},
	}
	wb, err := wm.Marshal(nil)
	if err != nil {
		return 0, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, &net.IPAddr{IP: ip}); err != nil {
		return 0, err
	}

	rb := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return 0, err
		}
		rm, err := icmp.ParseMessage(proto, rb[:n])
		if err != nil {
			continue
		}
		isReply := rm.Type == ipv4.ICMPTypeEchoReply || rm.Type == ipv6.ICMPTypeEchoReply
		if !isReply {
			continue
		}
		echo, ok := rm.Body.(*icmp.Echo)
		if !ok || echo.ID != id {
			continue
		}
		return msSince(start), nil
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func withSuccess(base models.SampleBase) models.SampleBase {
	base.Success = true
	return base
}

func withError(base models.SampleBase, msg string) models.SampleBase {
	base.Success = false
	base.Error = strPtr(msg)
	return base
}
