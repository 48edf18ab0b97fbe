// Command protocol-node is a demonstration peer: it wires a UDP transport.Transport
// to a runtime.State/runtime.Executor, persists identity across restarts, and
// exposes a stdin REPL for exchanging pairwise chat messages with bootstrap peers.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/protocol"
	"github.com/tom-network/tomcore/runtime"
)

type peerFlag struct {
	id   crypto.NodeId
	addr string
}

type peerFlags []peerFlag

func (p *peerFlags) String() string {
	parts := make([]string, 0, len(*p))
	for _, pf := range *p {
		parts = append(parts, fmt.Sprintf("%s@%s", pf.id.ShortString(), pf.addr))
	}
	return strings.Join(parts, ",")
}

func (p *peerFlags) Set(value string) error {
	at := strings.LastIndex(value, "@")
	if at < 0 {
		return fmt.Errorf("expected id@host:port, got %q", value)
	}
	idHex, addr := value[:at], value[at+1:]
	raw, err := hex.DecodeString(idHex)
	if err != nil {
		return fmt.Errorf("invalid peer id %q: %w", idHex, err)
	}
	id, err := crypto.NodeIdFromSlice(raw)
	if err != nil {
		return fmt.Errorf("invalid peer id %q: %w", idHex, err)
	}
	*p = append(*p, peerFlag{id: id, addr: addr})
	return nil
}

func main() {
	var (
		listenAddr = flag.String("listen", "0.0.0.0:0", "UDP address to listen on")
		savePath   = flag.String("save", "", "path to load/store this node's identity and peer list")
		username   = flag.String("username", "anon", "display name announced to peers")
		peers      peerFlags
	)
	flag.Var(&peers, "peer", "bootstrap peer as id@host:port, repeatable")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := protocol.DefaultConfig()
	state, pendingGroups, err := loadOrCreateState(*savePath, *username, cfg)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "main", "error": err}).Fatal("Failed to load or create node identity")
	}
	logrus.WithFields(logrus.Fields{"function": "main", "self": state.SelfId.String()}).Info("Node identity ready")
	for _, g := range pendingGroups {
		logrus.WithFields(logrus.Fields{"function": "main", "group": g.GroupId, "hub": g.HubId.ShortString()}).Info("Remembered group membership not yet rejoined")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", *listenAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "main", "error": err}).Fatal("Failed to resolve listen address")
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "main", "error": err}).Fatal("Failed to bind UDP socket")
	}
	defer conn.Close()
	logrus.WithFields(logrus.Fields{"function": "main", "addr": conn.LocalAddr().String()}).Info("Listening")

	discovery := newAddressBook()
	tr := newUdpTransport(conn, discovery, cfg.StaleThreshold)

	ex := runtime.NewExecutor(state, tr)
	go tr.readLoop(ex)
	ex.Start()

	for _, pf := range peers {
		discovery.Learn(pf.id, pf.addr)
		ex.Submit(runtime.Command{Kind: runtime.CommandAddPeer, Peer: pf.id})
		logrus.WithFields(logrus.Fields{"function": "main", "peer": pf.id.ShortString(), "addr": pf.addr}).Info("Seeded bootstrap peer")
	}

	go drainNotifications(ex)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.WithFields(logrus.Fields{"function": "main"}).Info("Shutting down")
		ex.Submit(runtime.Command{Kind: runtime.CommandShutdown})
		ex.Stop()
		persist(state, *savePath)
		os.Exit(0)
	}()

	repl(ex)
}

func drainNotifications(ex *runtime.Executor) {
	for {
		select {
		case ev, ok := <-ex.Events():
			if !ok {
				return
			}
			logrus.WithFields(logrus.Fields{"function": "drainNotifications", "kind": ev.Kind, "peer": ev.Peer.ShortString()}).Info("Event")
		case d, ok := <-ex.Deliveries():
			if !ok {
				return
			}
			fmt.Printf("[%s] %s\n", d.From.ShortString(), string(d.Payload))
		}
	}
}

// repl reads "pubkeyhex message..." lines from stdin and submits each as a
// CommandSendMessage, until stdin closes.
func repl(ex *runtime.Executor) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			fmt.Println("usage: <peer-id-hex> <message>")
			continue
		}
		raw, err := hex.DecodeString(parts[0])
		if err != nil {
			fmt.Printf("invalid peer id: %v\n", err)
			continue
		}
		id, err := crypto.NodeIdFromSlice(raw)
		if err != nil {
			fmt.Printf("invalid peer id: %v\n", err)
			continue
		}
		ex.Submit(runtime.Command{Kind: runtime.CommandSendMessage, Peer: id, Text: parts[1]})
	}
}

func loadOrCreateState(savePath, username string, cfg protocol.Config) (*runtime.State, []runtime.SavedGroupMembership, error) {
	if savePath != "" {
		if data, err := os.ReadFile(savePath); err == nil {
			st, groups, err := runtime.Load(data, cfg)
			if err != nil {
				return nil, nil, fmt.Errorf("load %s: %w", savePath, err)
			}
			return st, groups, nil
		}
	}
	self, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generate identity: %w", err)
	}
	return runtime.New(self, username, cfg), nil, nil
}

func persist(state *runtime.State, savePath string) {
	if savePath == "" {
		return
	}
	data, err := state.Save(time.Now())
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "persist", "error": err}).Error("Failed to serialize node state")
		return
	}
	if err := os.WriteFile(savePath, data, 0o600); err != nil {
		logrus.WithFields(logrus.Fields{"function": "persist", "error": err}).Error("Failed to write save file")
	}
}
