package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/sebas/relaycall/internal/callengine/media"
	"github.com/sebas/relaycall/internal/callengine/sdputil"
)

// SIPConfig holds SIP transport configuration.
type SIPConfig struct {
	BindAddr      string
	Port          int
	AdvertiseAddr string
	// User is the local identity's user part, used in From and Contact.
	User string
}

// sessionInfoBody is the JSON body of in-dialog INFO messages.
type sessionInfoBody struct {
	Focus     *bool  `json:"focus,omitempty"`
	Media     string `json:"media,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// dialogState tracks one SIP dialog keyed by session ID (Call-ID) so
// in-dialog requests (BYE, INFO) can be constructed later.
type dialogState struct {
	invite   *sip.Request
	response *sip.Response
	outbound bool
	cseq     atomic.Uint32
}

// pendingInvite is an inbound INVITE awaiting a final response.
type pendingInvite struct {
	req *sip.Request
	tx  sip.ServerTransaction
}

// SIPTransport implements Transport over SIP via sipgo: session-initiate
// maps to INVITE (SDP offer body, Replaces for the attended-transfer
// hint, an isfocus contact parameter for the focus indication), accept to
// 200 OK, terminate to an error response or BYE.
type SIPTransport struct {
	cfg    SIPConfig
	ua     *sipgo.UserAgent
	srv    *sipgo.Server
	client *sipgo.Client

	mu       sync.Mutex
	pending  map[string]*pendingInvite
	dialogs  map[string]*dialogState
	initiate InitiateHandler
	accept   AcceptHandler
	reject   RejectHandler
	term     TerminateHandler
}

var _ Transport = (*SIPTransport)(nil)

// NewSIPTransport creates the SIP user agent, server and client and
// registers the method handlers. Serve must be called to start listening.
func NewSIPTransport(cfg SIPConfig) (*SIPTransport, error) {
	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("create user agent: %w", err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("create server: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("create client: %w", err)
	}

	t := &SIPTransport{
		cfg:     cfg,
		ua:      ua,
		srv:     srv,
		client:  client,
		pending: make(map[string]*pendingInvite),
		dialogs: make(map[string]*dialogState),
	}

	srv.OnRequest(sip.INVITE, t.handleINVITE)
	srv.OnRequest(sip.ACK, t.handleACK)
	srv.OnRequest(sip.BYE, t.handleBYE)
	srv.OnRequest(sip.CANCEL, t.handleCANCEL)

	return t, nil
}

// Serve listens for SIP traffic until the context is canceled.
func (t *SIPTransport) Serve(ctx context.Context) error {
	listenAddr := fmt.Sprintf("%s:%d", t.cfg.BindAddr, t.cfg.Port)
	slog.Info("Starting SIP listener", "addr", listenAddr)
	return t.srv.ListenAndServe(ctx, "udp", listenAddr)
}

// OnSessionInitiate implements Transport.
func (t *SIPTransport) OnSessionInitiate(h InitiateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initiate = h
}

// OnSessionAccept implements Transport.
func (t *SIPTransport) OnSessionAccept(h AcceptHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accept = h
}

// OnSessionReject implements Transport.
func (t *SIPTransport) OnSessionReject(h RejectHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reject = h
}

// OnSessionTerminate implements Transport.
func (t *SIPTransport) OnSessionTerminate(h TerminateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.term = h
}

// Close implements Transport.
func (t *SIPTransport) Close() error {
	return t.ua.Close()
}

func (t *SIPTransport) localURI() sip.Uri {
	return sip.Uri{
		Scheme: "sip",
		User:   t.cfg.User,
		Host:   t.cfg.AdvertiseAddr,
		Port:   t.cfg.Port,
	}
}

// SendSessionInitiate implements Transport. The INVITE transaction is
// created synchronously; responses are dispatched asynchronously to the
// accept/reject handlers.
func (t *SIPTransport) SendSessionInitiate(ctx context.Context, msg *SessionInitiate) error {
	var recipient sip.Uri
	if err := sip.ParseUri(msg.To, &recipient); err != nil {
		return fmt.Errorf("invalid callee URI %q: %w", msg.To, err)
	}

	body, err := sdputil.BuildOffer(t.cfg.User, t.cfg.AdvertiseAddr, msg.Contents)
	if err != nil {
		return err
	}

	invite := sip.NewRequest(sip.INVITE, recipient)

	maxFwd := sip.MaxForwardsHeader(70)
	invite.AppendHeader(&maxFwd)

	fromParams := sip.NewParams()
	fromParams.Add("tag", uuid.NewString())
	invite.AppendHeader(&sip.FromHeader{
		Address: t.localURI(),
		Params:  fromParams,
	})
	invite.AppendHeader(&sip.ToHeader{
		Address: recipient,
		Params:  sip.NewParams(),
	})

	callID := sip.CallIDHeader(msg.SID)
	invite.AppendHeader(&callID)
	invite.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})

	contact := &sip.ContactHeader{Address: t.localURI()}
	if msg.Focus {
		contact.Params = sip.NewParams()
		contact.Params.Add("isfocus", "")
	}
	invite.AppendHeader(contact)

	if msg.Transfer != nil {
		invite.AppendHeader(sip.NewHeader("Replaces", msg.Transfer.SID))
		invite.AppendHeader(sip.NewHeader("Referred-By", msg.Transfer.From))
	}

	contentType := sip.ContentTypeHeader("application/sdp")
	invite.AppendHeader(&contentType)
	invite.SetBody(body)

	tx, err := t.client.TransactionRequest(ctx, invite)
	if err != nil {
		return fmt.Errorf("send INVITE: %w", err)
	}

	go t.watchInvite(msg.SID, invite, tx)
	return nil
}

// watchInvite follows the response flow of an outbound INVITE.
func (t *SIPTransport) watchInvite(sid string, invite *sip.Request, tx sip.ClientTransaction) {
	for {
		select {
		case resp := <-tx.Responses():
			if resp == nil {
				return
			}
			switch {
			case resp.StatusCode < 200:
				// Provisional; keep waiting.
			case resp.StatusCode < 300:
				t.confirmOutbound(sid, invite, resp)
				return
			default:
				slog.Info("Outbound session rejected",
					"sid", sid, "code", int(resp.StatusCode), "reason", resp.Reason)
				t.mu.Lock()
				reject := t.reject
				t.mu.Unlock()
				if reject != nil {
					reject(sid, reasonFromStatus(int(resp.StatusCode)), resp.Reason)
				}
				return
			}
		case <-tx.Done():
			return
		}
	}
}

func (t *SIPTransport) confirmOutbound(sid string, invite *sip.Request, resp *sip.Response) {
	ack := sip.NewAckRequest(invite, resp, nil)
	if err := t.client.WriteRequest(ack); err != nil {
		slog.Warn("Failed to send ACK", "sid", sid, "error", err)
	}

	ds := &dialogState{invite: invite, response: resp, outbound: true}
	ds.cseq.Store(1)
	t.mu.Lock()
	t.dialogs[sid] = ds
	accept := t.accept
	t.mu.Unlock()

	var contents []media.Description
	if len(resp.Body()) > 0 {
		if parsed, err := sdputil.ParseOffer(resp.Body()); err == nil {
			contents = parsed
		}
	}
	if accept != nil {
		accept(sid, contents)
	}
}

func (t *SIPTransport) handleINVITE(req *sip.Request, tx sip.ServerTransaction) {
	sid := ""
	if req.CallID() != nil {
		sid = req.CallID().Value()
	}
	slog.Info("Received INVITE", "from", req.From(), "call_id", sid)

	ringing := sip.NewResponseFromRequest(req, 180, "Ringing", nil)
	if err := tx.Respond(ringing); err != nil {
		slog.Error("Failed to send 180 Ringing", "error", err)
		return
	}

	msg := t.parseInvite(sid, req)

	t.mu.Lock()
	t.pending[sid] = &pendingInvite{req: req, tx: tx}
	h := t.initiate
	t.mu.Unlock()

	if h == nil {
		slog.Warn("No session-initiate handler registered, rejecting", "call_id", sid)
		resp := sip.NewResponseFromRequest(req, 480, "Temporarily Unavailable", nil)
		tx.Respond(resp)
		return
	}
	// Offer processing may block on channel allocation; keep the SIP
	// serve loop free.
	go h(msg)
}

// parseInvite maps an INVITE onto the session-initiate model.
func (t *SIPTransport) parseInvite(sid string, req *sip.Request) *SessionInitiate {
	msg := &SessionInitiate{SID: sid}

	if from := req.From(); from != nil {
		msg.From = from.Address.String()
		msg.Initiator = msg.From
	}
	if to := req.To(); to != nil {
		msg.To = to.Address.String()
	}

	if contact := req.Contact(); contact != nil && contact.Params != nil {
		if _, ok := contact.Params.Get("isfocus"); ok {
			msg.Focus = true
		}
	}

	if replaces := req.GetHeader("Replaces"); replaces != nil {
		hint := &TransferHint{To: msg.To}
		// Replaces may carry dialog tag parameters; only the call
		// identifier names the prior session.
		hint.SID = strings.SplitN(replaces.Value(), ";", 2)[0]
		if referredBy := req.GetHeader("Referred-By"); referredBy != nil {
			hint.From = referredBy.Value()
		}
		msg.Transfer = hint
	}

	if len(req.Body()) > 0 {
		if contents, err := sdputil.ParseOffer(req.Body()); err == nil {
			msg.Contents = contents
		} else {
			slog.Info("Could not parse offer body", "call_id", sid, "error", err)
		}
	}
	return msg
}

// SendSessionAccept implements Transport.
func (t *SIPTransport) SendSessionAccept(ctx context.Context, msg *SessionAccept) error {
	t.mu.Lock()
	inv, ok := t.pending[msg.SID]
	if ok {
		delete(t.pending, msg.SID)
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending session %s to accept", msg.SID)
	}

	var body []byte
	if len(msg.Contents) > 0 {
		answer, err := sdputil.BuildOffer(t.cfg.User, t.cfg.AdvertiseAddr, msg.Contents)
		if err != nil {
			return err
		}
		body = answer
	}

	resp := sip.NewResponseFromRequest(inv.req, 200, "OK", body)
	if to := resp.To(); to != nil {
		if to.Params == nil {
			to.Params = sip.NewParams()
		}
		if _, ok := to.Params.Get("tag"); !ok {
			to.Params.Add("tag", uuid.NewString())
		}
	}
	resp.AppendHeader(&sip.ContactHeader{Address: t.localURI()})
	if body != nil {
		contentType := sip.ContentTypeHeader("application/sdp")
		resp.AppendHeader(&contentType)
	}

	if err := inv.tx.Respond(resp); err != nil {
		return fmt.Errorf("send 200 OK: %w", err)
	}

	ds := &dialogState{invite: inv.req, response: resp}
	if cseq := inv.req.CSeq(); cseq != nil {
		ds.cseq.Store(cseq.SeqNo)
	}
	t.mu.Lock()
	t.dialogs[msg.SID] = ds
	t.mu.Unlock()
	return nil
}

// SendSessionTerminate implements Transport.
func (t *SIPTransport) SendSessionTerminate(ctx context.Context, to, sid string, reason Reason, text string) error {
	t.mu.Lock()
	inv, isPending := t.pending[sid]
	ds, isEstablished := t.dialogs[sid]
	delete(t.pending, sid)
	delete(t.dialogs, sid)
	t.mu.Unlock()

	if isPending {
		code, defaultText := statusFromReason(reason)
		if text == "" {
			text = defaultText
		}
		resp := sip.NewResponseFromRequest(inv.req, sip.StatusCode(code), text, nil)
		if err := inv.tx.Respond(resp); err != nil {
			return fmt.Errorf("send %d response: %w", code, err)
		}
		return nil
	}

	if isEstablished {
		bye, err := t.buildInDialogRequest(ds, sip.BYE)
		if err != nil {
			return err
		}
		tx, err := t.client.TransactionRequest(ctx, bye)
		if err != nil {
			return fmt.Errorf("send BYE: %w", err)
		}
		select {
		case <-tx.Responses():
		case <-tx.Done():
		case <-ctx.Done():
		}
		return nil
	}

	return fmt.Errorf("no session %s to terminate", sid)
}

// SendSessionInfo implements Transport.
func (t *SIPTransport) SendSessionInfo(ctx context.Context, msg *SessionInfo) error {
	focus := msg.Focus
	return t.sendInfo(ctx, msg.SID, sessionInfoBody{Focus: &focus})
}

// SendContentModify implements Transport.
func (t *SIPTransport) SendContentModify(ctx context.Context, msg *ContentModify) error {
	return t.sendInfo(ctx, msg.SID, sessionInfoBody{
		Media:     msg.Type.String(),
		Direction: msg.Direction.String(),
	})
}

func (t *SIPTransport) sendInfo(ctx context.Context, sid string, body sessionInfoBody) error {
	t.mu.Lock()
	ds, ok := t.dialogs[sid]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("no established session %s", sid)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	info, err := t.buildInDialogRequest(ds, "INFO")
	if err != nil {
		return err
	}
	contentType := sip.ContentTypeHeader("application/json")
	info.AppendHeader(&contentType)
	info.SetBody(payload)

	tx, err := t.client.TransactionRequest(ctx, info)
	if err != nil {
		return fmt.Errorf("send INFO: %w", err)
	}
	select {
	case <-tx.Responses():
	case <-tx.Done():
	case <-ctx.Done():
	}
	return nil
}

// buildInDialogRequest constructs an in-dialog request (BYE, INFO) with
// the dialog's identifiers, From/To swapped for inbound dialogs.
func (t *SIPTransport) buildInDialogRequest(ds *dialogState, method sip.RequestMethod) (*sip.Request, error) {
	var recipient sip.Uri
	if ds.outbound {
		if contact := ds.response.Contact(); contact != nil {
			recipient = contact.Address
		} else if to := ds.invite.To(); to != nil {
			recipient = to.Address
		}
	} else {
		if contact := ds.invite.Contact(); contact != nil {
			recipient = contact.Address
			recipient.UriParams = sip.NewParams()
		} else if from := ds.invite.From(); from != nil {
			recipient = from.Address
		}
	}

	req := sip.NewRequest(method, recipient)

	if ds.outbound {
		if from := ds.invite.From(); from != nil {
			req.AppendHeader(&sip.FromHeader{Address: from.Address, Params: tagParams(from.Params)})
		}
		toParams := sip.NewParams()
		if respTo := ds.response.To(); respTo != nil {
			toParams = tagParams(respTo.Params)
		}
		if to := ds.invite.To(); to != nil {
			req.AppendHeader(&sip.ToHeader{Address: to.Address, Params: toParams})
		}
	} else {
		if respTo := ds.response.To(); respTo != nil {
			req.AppendHeader(&sip.FromHeader{Address: respTo.Address, Params: tagParams(respTo.Params)})
		}
		if from := ds.invite.From(); from != nil {
			req.AppendHeader(&sip.ToHeader{Address: from.Address, Params: tagParams(from.Params)})
		}
	}

	if callID := ds.invite.CallID(); callID != nil {
		req.AppendHeader(sip.HeaderClone(callID))
	}
	req.AppendHeader(&sip.CSeqHeader{
		SeqNo:      ds.cseq.Add(1),
		MethodName: method,
	})
	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)
	req.AppendHeader(&sip.ContactHeader{Address: t.localURI()})

	return req, nil
}

// tagParams copies only the tag parameter of a From/To header, dropping
// everything else.
func tagParams(params sip.HeaderParams) sip.HeaderParams {
	out := sip.NewParams()
	if params != nil {
		if tag, ok := params.Get("tag"); ok {
			out.Add("tag", tag)
		}
	}
	return out
}

func (t *SIPTransport) handleACK(req *sip.Request, tx sip.ServerTransaction) {
	// Dialog confirmation; nothing to do beyond logging.
	if req.CallID() != nil {
		slog.Debug("Received ACK", "call_id", req.CallID().Value())
	}
}

func (t *SIPTransport) handleBYE(req *sip.Request, tx sip.ServerTransaction) {
	sid := ""
	if req.CallID() != nil {
		sid = req.CallID().Value()
	}

	resp := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(resp); err != nil {
		slog.Error("Failed to respond to BYE", "call_id", sid, "error", err)
	}

	t.mu.Lock()
	delete(t.dialogs, sid)
	h := t.term
	t.mu.Unlock()
	if h != nil {
		h(sid, ReasonNormal)
	}
}

func (t *SIPTransport) handleCANCEL(req *sip.Request, tx sip.ServerTransaction) {
	sid := ""
	if req.CallID() != nil {
		sid = req.CallID().Value()
	}

	resp := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(resp); err != nil {
		slog.Error("Failed to respond to CANCEL", "call_id", sid, "error", err)
	}

	t.mu.Lock()
	inv, ok := t.pending[sid]
	delete(t.pending, sid)
	h := t.term
	t.mu.Unlock()

	if ok {
		terminated := sip.NewResponseFromRequest(inv.req, 487, "Request Terminated", nil)
		inv.tx.Respond(terminated)
	}
	if h != nil {
		h(sid, ReasonDecline)
	}
}

func statusFromReason(reason Reason) (int, string) {
	switch reason {
	case ReasonSecurityError:
		return 488, "Not Acceptable Here"
	case ReasonDecline:
		return 603, "Decline"
	case ReasonBusy:
		return 486, "Busy Here"
	case ReasonFailedApplication:
		return 488, "Not Acceptable Here"
	default:
		return 480, "Temporarily Unavailable"
	}
}

func reasonFromStatus(code int) Reason {
	switch code {
	case 486:
		return ReasonBusy
	case 603:
		return ReasonDecline
	case 488, 606:
		return ReasonFailedApplication
	default:
		return ReasonNormal
	}
}
