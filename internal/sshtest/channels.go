package sshtest

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"golang.org/x/crypto/ssh"
)

// HandleChannels serves "direct-tcpip" channels and rejects every other type.
func HandleChannels(chans <-chan ssh.NewChannel) {
	var wg sync.WaitGroup
	defer wg.Wait()
	for newChannel := range chans {
		if newChannel.ChannelType() != "direct-tcpip" {
			newChannel.Reject(ssh.UnknownChannelType, "only port forwarding allowed")
			continue
		}
		host, port, err := ParseDirectTCPIP(newChannel.ExtraData())
		if err != nil {
			newChannel.Reject(ssh.Prohibited, err.Error())
			continue
		}
		addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
		target, err := net.Dial("tcp", addr)
		if err != nil {
			newChannel.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		ch, reqs, err := newChannel.Accept()
		if err != nil {
			target.Close()
			continue
		}
		go ssh.DiscardRequests(reqs)

		wg.Add(1)
		go func() {
			defer wg.Done()
			forward(ch, target)
		}()
	}
}

// ParseDirectTCPIP extracts the requested host and port from the extra data
// of a "direct-tcpip" channel open request (RFC 4254, section 7.2).
func ParseDirectTCPIP(extra []byte) (string, uint32, error) {
	if len(extra) < 4 {
		return "", 0, fmt.Errorf("invalid direct-tcpip request: insufficient data for host length")
	}
	l := int(binary.BigEndian.Uint32(extra[:4]))
	if len(extra) < 4+l+4 {
		return "", 0, fmt.Errorf("invalid direct-tcpip request: insufficient data for host and port")
	}
	host := string(extra[4 : 4+l])
	port := binary.BigEndian.Uint32(extra[4+l : 4+l+4])
	return host, port, nil
}

// forward copies between the channel and the target until both directions finish.
func forward(ch ssh.Channel, target net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(target, ch)
		if tc, ok := target.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		io.Copy(ch, target)
		ch.CloseWrite()
	}()
	wg.Wait()
	target.Close()
	ch.Close()
}
