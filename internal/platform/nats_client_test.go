package platform

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("creating NATS server: %v", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

// respond installs a fake adapter for one verb.
func respond(t *testing.T, nc *nats.Conn, verb string, fn func(req ActionRequest) ActionReply) {
	t.Helper()
	_, err := nc.Subscribe(DefaultSubjectPrefix+"."+verb, func(msg *nats.Msg) {
		var req ActionRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.Errorf("adapter got bad request: %v", err)
			return
		}
		data, _ := json.Marshal(fn(req))
		_ = msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}
}

func TestNATSClient_ListWebhooks(t *testing.T) {
	nc := startNATS(t)
	respond(t, nc, VerbListWebhooks, func(req ActionRequest) ActionReply {
		if req.GuildID != "g1" || req.ChannelID != "c1" {
			t.Errorf("unexpected request %+v", req)
		}
		return ActionReply{OK: true, Webhooks: []Webhook{{ID: "w1", ChannelID: "c1", URL: "https://hook/1"}}}
	})

	c := NewNATSClient(nc, "", time.Second)
	hooks, err := c.ListWebhooks(context.Background(), "g1", "c1")
	if err != nil {
		t.Fatalf("ListWebhooks() error: %v", err)
	}
	if len(hooks) != 1 || hooks[0].Identifier() != "https://hook/1" {
		t.Errorf("ListWebhooks() = %+v", hooks)
	}
}

func TestNATSClient_ErrorCodes(t *testing.T) {
	nc := startNATS(t)
	respond(t, nc, VerbBanMember, func(req ActionRequest) ActionReply {
		return ActionReply{Code: CodeForbidden, Error: "missing BAN_MEMBERS"}
	})
	respond(t, nc, VerbDeleteWebhook, func(req ActionRequest) ActionReply {
		return ActionReply{Code: CodeNotFound}
	})
	respond(t, nc, VerbRemoveRoles, func(req ActionRequest) ActionReply {
		return ActionReply{Error: "rate limited"}
	})

	c := NewNATSClient(nc, "", time.Second)
	ctx := context.Background()

	err := c.BanMember(ctx, "g", "u", "reason")
	if !errors.Is(err, ErrActionFailed) || !errors.Is(err, ErrForbidden) {
		t.Errorf("BanMember error = %v, want ErrActionFailed+ErrForbidden", err)
	}
	err = c.DeleteWebhook(ctx, "g", Webhook{ID: "w"}, "reason")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteWebhook error = %v, want ErrNotFound", err)
	}
	err = c.RemoveRoles(ctx, "g", "u", []Role{{ID: "r", Name: "Admin"}}, "reason")
	if !errors.Is(err, ErrActionFailed) || errors.Is(err, ErrForbidden) {
		t.Errorf("RemoveRoles error = %v, want plain ErrActionFailed", err)
	}
}

func TestNATSClient_NoResponder(t *testing.T) {
	nc := startNATS(t)
	c := NewNATSClient(nc, "", 200*time.Millisecond)
	err := c.SendMessage(context.Background(), "g", "c", "hello")
	if !errors.Is(err, ErrActionFailed) {
		t.Errorf("SendMessage without adapter error = %v, want ErrActionFailed", err)
	}
}

func TestNATSClient_SystemChannel(t *testing.T) {
	nc := startNATS(t)
	respond(t, nc, VerbSystemChannel, func(req ActionRequest) ActionReply {
		return ActionReply{OK: true, ChannelID: "900"}
	})
	c := NewNATSClient(nc, "", time.Second)
	ch, err := c.SystemChannel(context.Background(), "g")
	if err != nil || ch != "900" {
		t.Errorf("SystemChannel() = %q, %v", ch, err)
	}
}

func TestMember_Mention(t *testing.T) {
	if got := (Member{ID: "42"}).Mention(); got != "<@42>" {
		t.Errorf("Mention() = %q", got)
	}
}

func TestWebhook_IdentifierFallsBackToID(t *testing.T) {
	if got := (Webhook{ID: "w9"}).Identifier(); got != "w9" {
		t.Errorf("Identifier() = %q, want w9", got)
	}
}
