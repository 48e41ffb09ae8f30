package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"time"

	"github.com/falconqueue/taskcore/internal/nac/protocol"
	"github.com/falconqueue/taskcore/internal/nac/tclient"
)

// NacListener is the master-side counterpart to tclient.AccessCtrl: it
// accepts plain TCP connections framed the same way (tclient.Packet over
// tclient.Framer) and dispatches worker<->master job-protocol messages to a
// Server. Every connection gets its own read loop; BizAuthRequest is
// answered unconditionally (this deployment has no credential check beyond
// the transport itself) and BizHeartbeat is echoed back.
type NacListener struct {
	server   *Server
	logger   *slog.Logger
	listener net.Listener
}

// NewNacListener creates an unbound listener. Serve binds addr and accepts.
func NewNacListener(server *Server, logger *slog.Logger) *NacListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &NacListener{server: server, logger: logger}
}

// Serve accepts connections on addr until ctx is cancelled or Close is called.
func (n *NacListener) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	n.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				n.logger.Warn("nac listener accept failed", "error", err)
				return err
			}
		}
		go n.handleConn(ctx, conn)
	}
}

// Close stops accepting new connections.
func (n *NacListener) Close() error {
	if n.listener != nil {
		return n.listener.Close()
	}
	return nil
}

func (n *NacListener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	framer := tclient.NewFramer()
	buf := make([]byte, 64*1024)

	for {
		nr, err := conn.Read(buf)
		if nr > 0 {
			packets, ferr := framer.Feed(buf[:nr])
			for _, pkt := range packets {
				resp := n.dispatch(ctx, pkt)
				if resp == nil {
					continue
				}
				out, encErr := tclient.Encode(resp)
				if encErr != nil {
					n.logger.Warn("encode response failed", "error", encErr)
					continue
				}
				if _, werr := conn.Write(out); werr != nil {
					n.logger.Warn("write response failed", "error", werr)
					return
				}
			}
			if ferr != nil {
				n.logger.Warn("framing error, closing connection", "error", ferr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// dispatch routes one decoded packet to the matching Server method and
// builds the reply packet (same BizCode/SeqID, new Data), or nil if no
// reply is warranted.
func (n *NacListener) dispatch(ctx context.Context, pkt *tclient.Packet) *tclient.Packet {
	switch pkt.BizCode {
	case tclient.BizAuthRequest:
		return &tclient.Packet{BizCode: pkt.BizCode, SeqID: pkt.SeqID, Data: []byte(`{"ok":true}`)}

	case tclient.BizHeartbeat:
		return &tclient.Packet{BizCode: pkt.BizCode, SeqID: pkt.SeqID, Data: pkt.Data}

	case protocol.BizSubmitJob:
		var req protocol.SubmitJobRequest
		if err := json.Unmarshal(pkt.Data, &req); err != nil {
			return n.errorReply(pkt, err)
		}
		resp := n.server.SubmitJob(ctx, req)
		return n.jsonReply(pkt, resp)

	case protocol.BizPollJobs:
		var req protocol.PollJobsRequest
		if err := json.Unmarshal(pkt.Data, &req); err != nil {
			return n.errorReply(pkt, err)
		}
		pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		resp, err := n.server.PollJobs(pollCtx, req)
		cancel()
		if err != nil {
			return n.errorReply(pkt, err)
		}
		return n.jsonReply(pkt, resp)

	case protocol.BizAcknowledgeJob:
		var req protocol.AcknowledgeJobRequest
		if err := json.Unmarshal(pkt.Data, &req); err != nil {
			return n.errorReply(pkt, err)
		}
		resp := n.server.AcknowledgeJob(ctx, req)
		return n.jsonReply(pkt, resp)

	case protocol.BizRegisterWorker:
		var req protocol.RegisterWorkerRequest
		if err := json.Unmarshal(pkt.Data, &req); err != nil {
			return n.errorReply(pkt, err)
		}
		resp := n.server.RegisterWorker(ctx, req)
		return n.jsonReply(pkt, resp)

	default:
		n.logger.Warn("unknown biz code", "bizCode", pkt.BizCode)
		return nil
	}
}

func (n *NacListener) jsonReply(pkt *tclient.Packet, payload interface{}) *tclient.Packet {
	data, err := json.Marshal(payload)
	if err != nil {
		return n.errorReply(pkt, err)
	}
	return &tclient.Packet{BizCode: pkt.BizCode, SeqID: pkt.SeqID, Data: data}
}

func (n *NacListener) errorReply(pkt *tclient.Packet, err error) *tclient.Packet {
	n.logger.Warn("request handling failed", "bizCode", pkt.BizCode, "error", err)
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return &tclient.Packet{BizCode: pkt.BizCode, SeqID: pkt.SeqID, Data: data}
}
