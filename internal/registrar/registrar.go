// Package registrar authenticates dynamic host check-ins, updates the host's
// DNS record and keeps its heartbeat current. Failed attempts are counted per
// client IP and per user, and either is locked once it reaches the limit.
package registrar

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/marksidell/dynips/internal/statekey"
	"github.com/marksidell/dynips/internal/store"
)

const (
	ActionUpdated  = "updated"
	ActionNoChange = "no_change"
)

// Directory is the DNS side of a registration.
type Directory interface {
	FullHostname(host string) string
	CurrentIP(ctx context.Context, host string) (string, error)
	SetHostIP(ctx context.Context, host, ip string) error
}

// UserFile is the body of "users/<user>".
type UserFile struct {
	KeyHash string `json:"keyhash"`
}

type Request struct {
	ClientIP string
	Host     string
	Key      string
	IP       string
	NoExpire bool
}

// Result is returned to the client. Host and CurIP are only filled once the
// user is known.
type Result struct {
	IP     string `json:"ip"`
	NewIP  string `json:"new_ip,omitempty"`
	Action string `json:"action,omitempty"`
	Host   string `json:"host,omitempty"`
	CurIP  string `json:"cur_ip,omitempty"`
}

type Options struct {
	MaxErrors int
	// Kick is called after a host's address changes.
	Kick func()
}

type Registrar struct {
	objects store.ObjectStore
	dir     Directory
	opts    Options
	log     *slog.Logger
}

func New(objects store.ObjectStore, dir Directory, opts Options, log *slog.Logger) *Registrar {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = 5
	}
	if opts.Kick == nil {
		opts.Kick = func() {}
	}
	return &Registrar{objects: objects, dir: dir, opts: opts, log: log}
}

// Register processes one check-in. Failures are returned as *Error.
func (r *Registrar) Register(ctx context.Context, req Request) (Result, error) {
	bucket, err := store.Open(ctx, r.objects)
	if err != nil {
		r.log.Error("opening record store", "error", err)
		return Result{}, internal("Internal error")
	}

	var user string
	res, err := r.register(ctx, bucket, req, &user)
	if err == nil {
		return res, nil
	}

	var e *Error
	if errors.As(err, &e) {
		r.log.Error(e.Detail, "client_ip", req.ClientIP, "host", req.Host, "status", e.Kind.Status())
	} else {
		r.log.Error("registration failed", "client_ip", req.ClientIP, "host", req.Host, "error", err)
		e = internal("Internal error")
	}

	if e.Record {
		r.recordError(ctx, bucket, req.ClientIP, e.Detail)
		if user != "" {
			r.recordError(ctx, bucket, user, e.Detail)
		}
	}
	return Result{}, e
}

func (r *Registrar) register(ctx context.Context, bucket *store.Bucket, req Request, user *string) (Result, error) {
	if bucket.IsLocked(req.ClientIP) {
		return Result{}, unauthorized(false, "IP '%s' is locked", req.ClientIP)
	}
	res := Result{IP: req.ClientIP}
	if req.Host == "" {
		return res, nil
	}

	host := strings.ToLower(req.Host)
	u, _, ok := statekey.ParseHost(host)
	if !ok {
		return Result{}, badRequest("Invalid host param '%s'", req.Host)
	}
	*user = u

	if bucket.IsLocked(u) {
		return Result{}, unauthorized(false, "User '%s' is locked", u)
	}
	if !bucket.HasUser(u) {
		return Result{}, unauthorized(true, "Unknown user '%s'", u)
	}

	curIP, err := r.dir.CurrentIP(ctx, host)
	if err != nil {
		r.log.Error("looking up current address", "host", r.dir.FullHostname(host), "error", err)
		curIP = "unknown"
	}

	if req.Key != "" {
		if err := r.checkKey(ctx, bucket, u, req.Key); err != nil {
			return Result{}, err
		}

		newIP := req.IP
		if newIP == "" {
			newIP = req.ClientIP
		} else if !statekey.IsIPv4Literal(newIP) {
			return Result{}, badRequest("Invalid IP '%s'", newIP)
		}

		res.Action = ActionNoChange
		if curIP != newIP {
			res.Action = ActionUpdated
			res.NewIP = newIP
			if err := r.dir.SetHostIP(ctx, host, newIP); err != nil {
				r.log.Error("updating host address", "host", host, "ip", newIP, "error", err)
				return Result{}, internal("Internal error updating host IP")
			}
			r.log.Info("host address updated", "host", host, "ip", newIP, "previous", curIP)
			r.opts.Kick()
		}

		if err := bucket.WriteHeartbeat(ctx, host, newIP, req.NoExpire); err != nil {
			return Result{}, err
		}
	}

	res.Host = r.dir.FullHostname(host)
	res.CurIP = curIP
	return res, nil
}

func (r *Registrar) checkKey(ctx context.Context, bucket *store.Bucket, user, key string) error {
	body, err := bucket.UserFile(ctx, user)
	if err != nil {
		return err
	}
	var uf UserFile
	if err := json.Unmarshal(body, &uf); err != nil || uf.KeyHash == "" {
		return &Error{Kind: KindInternal, Detail: "The user configuration is damaged"}
	}

	ok, err := VerifyKey(key, uf.KeyHash)
	if err != nil {
		r.log.Error("verifying key", "user", user, "error", err)
		return &Error{Kind: KindInternal, Detail: "The user configuration is damaged"}
	}
	if !ok {
		return unauthorized(true, "Unknown user '%s' or invalid key '****'", user)
	}
	return nil
}

// recordError writes the next error marker for name and locks name once it
// has accumulated MaxErrors of them.
func (r *Registrar) recordError(ctx context.Context, bucket *store.Bucket, name, msg string) {
	body, err := json.Marshal(store.ErrorRecord{Error: msg})
	if err != nil {
		return
	}
	ords := bucket.ErrorOrdinals(name)
	if err := bucket.WriteStateFileOrd(ctx, name, statekey.Error, bucket.NextErrorOrdinal(name), body); err != nil {
		r.log.Error("recording error", "name", name, "error", err)
		return
	}
	if len(ords)+1 >= r.opts.MaxErrors {
		if err := bucket.WriteLockFile(ctx, name, msg); err != nil {
			r.log.Error("writing lock marker", "name", name, "error", err)
			return
		}
		r.log.Warn("locked after repeated errors", "name", name, "errors", len(ords)+1)
	}
}

// AddUser writes the credential file for user with a freshly hashed key.
func AddUser(ctx context.Context, objects store.ObjectStore, user, key string, rounds int) error {
	if _, _, ok := statekey.ParseHost(user); !ok || strings.Contains(user, "-") {
		return badRequest("Invalid user name '%s'", user)
	}
	hash, err := HashKey(key, rounds)
	if err != nil {
		return err
	}
	body, err := json.Marshal(UserFile{KeyHash: hash})
	if err != nil {
		return err
	}
	bucket, err := store.Open(ctx, objects)
	if err != nil {
		return err
	}
	return bucket.WriteUserFile(ctx, user, body)
}
