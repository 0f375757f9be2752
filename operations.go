// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/openconfig/gnmic/pkg/api"
	"github.com/tidwall/gjson"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/netascode/go-gnmi-southbound/datatree"
)

// Input validation constants
const (
	// MaxValueSize is the maximum size for a single value in bytes (10MB)
	MaxValueSize = 10 * 1024 * 1024

	// MaxPathLength is the maximum length for a gNMI path (1024 characters)
	MaxPathLength = 1024
)

// Read fetches the node at id from the device. It reports false when the
// device returns no data or NOT_FOUND.
//
// Example:
//
//	id := datatree.NodeIdentifier{
//	    datatree.Step("openconfig-interfaces", "interfaces"),
//	    datatree.Step("openconfig-interfaces", "interface"),
//	    datatree.KeyedStep("openconfig-interfaces", "interface",
//	        datatree.KeyValue{Name: "name", Value: "eth0"}),
//	}
//	node, found, err := conn.Read(ctx, datatree.Config, id)
func (c *DeviceConnection) Read(ctx context.Context, ds datatree.Datastore, id datatree.NodeIdentifier) (datatree.DataNode, bool, error) {
	path, err := c.paths.IdentifierToPath(id)
	if err != nil {
		return nil, false, err
	}
	req := &gnmipb.GetRequest{
		Prefix:   c.prefix(),
		Path:     []*gnmipb.Path{path},
		Type:     dataType(ds),
		Encoding: gnmipb.Encoding_JSON_IETF,
	}

	c.logger.Debug(ctx, "gNMI Get request",
		"device", c.deviceID,
		"datastore", ds.String(),
		"path", id.String())

	var resp *gnmipb.GetResponse
	err = c.invoke(ctx, "get", &Req{}, func(ctx context.Context) error {
		r, err := c.transport.Get(ctx, req)
		resp = r
		return err
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	for _, n := range resp.GetNotification() {
		for _, u := range n.GetUpdate() {
			node, err := c.values.Decode(id, u.GetVal(), c.schema)
			if err != nil {
				return nil, false, err
			}
			return node, true, nil
		}
	}
	return nil, false, nil
}

// Write stores node at id, as a replace when the device is configured to
// overwrite the datastore and as an update otherwise.
func (c *DeviceConnection) Write(ctx context.Context, ds datatree.Datastore, id datatree.NodeIdentifier, node datatree.DataNode) error {
	if c.cfg.OverwriteDatastore {
		return c.modify(ctx, ds, id, node, OperationReplace)
	}
	return c.modify(ctx, ds, id, node, OperationUpdate)
}

// Merge merges node into the data at id with a gNMI update.
func (c *DeviceConnection) Merge(ctx context.Context, ds datatree.Datastore, id datatree.NodeIdentifier, node datatree.DataNode) error {
	return c.modify(ctx, ds, id, node, OperationUpdate)
}

// Delete removes the data at id.
func (c *DeviceConnection) Delete(ctx context.Context, ds datatree.Datastore, id datatree.NodeIdentifier) error {
	return c.modify(ctx, ds, id, nil, OperationDelete)
}

func (c *DeviceConnection) modify(ctx context.Context, ds datatree.Datastore, id datatree.NodeIdentifier, node datatree.DataNode, op SetOperationType) error {
	if ds != datatree.Config {
		return fmt.Errorf("southbound: %s datastore is read-only", ds)
	}
	path, err := c.paths.IdentifierToPath(id)
	if err != nil {
		return err
	}
	req := &gnmipb.SetRequest{Prefix: c.prefix()}
	if op == OperationDelete {
		req.Delete = []*gnmipb.Path{path}
	} else {
		val, err := c.values.Encode(id, node, c.schema)
		if err != nil {
			return err
		}
		upd := &gnmipb.Update{Path: path, Val: val}
		if op == OperationReplace {
			req.Replace = []*gnmipb.Update{upd}
		} else {
			req.Update = []*gnmipb.Update{upd}
		}
		if raw := val.GetJsonIetfVal(); raw != nil {
			c.logger.Debug(ctx, "gNMI Set value",
				"device", c.deviceID,
				"operation", string(op),
				"path", id.String(),
				"value", c.prepareJSONForLogging(string(raw)))
		}
	}
	_, err = c.set(ctx, req, &Req{})
	return err
}

// Get performs a gNMI Get with string paths.
//
// Example:
//
//	res, err := conn.Get(ctx, []string{"/interfaces/interface[name=eth0]/state"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timestamp := res.GetValue("notification.0.timestamp").Int()
func (c *DeviceConnection) Get(ctx context.Context, paths []string, mods ...func(*Req)) (GetRes, error) {
	req := &Req{Encoding: EncodingJSONIETF}
	for _, mod := range mods {
		mod(req)
	}
	if err := validatePaths(paths); err != nil {
		return GetRes{Errors: []ErrorModel{{Message: err.Error()}}}, fmt.Errorf("get: %w", err)
	}
	if err := ValidateEncoding(req.Encoding); err != nil {
		return GetRes{Errors: []ErrorModel{{Message: err.Error()}}}, fmt.Errorf("get: %w", err)
	}

	opts := []api.GNMIOption{api.Encoding(strings.ToLower(req.Encoding))}
	for _, p := range paths {
		opts = append(opts, api.Path(p))
	}
	getReq, err := api.NewGetRequest(opts...)
	if err != nil {
		return GetRes{Errors: []ErrorModel{{Message: err.Error()}}}, fmt.Errorf("get: failed to create request: %w", err)
	}
	c.setTarget(&getReq.Prefix)

	c.logger.Debug(ctx, "gNMI Get request",
		"device", c.deviceID,
		"paths", len(paths),
		"encoding", req.Encoding)

	var resp *gnmipb.GetResponse
	err = c.invoke(ctx, "get", req, func(ctx context.Context) error {
		r, err := c.transport.Get(ctx, getReq)
		resp = r
		return err
	})
	if err != nil {
		return GetRes{Errors: extractErrorDetails(err)}, err
	}
	return GetRes{
		Notifications: resp.GetNotification(),
		Timestamp:     time.Now().UnixNano(),
		OK:            true,
	}, nil
}

// Set performs a gNMI Set with string-path operations built by Update,
// Replace and Delete. Set requests of one device are serialized.
//
// Example:
//
//	ops := []southbound.SetOperation{
//	    southbound.Update("/interfaces/interface[name=eth0]/config/description",
//	        `{"description": "WAN Interface"}`),
//	    southbound.Delete("/interfaces/interface[name=eth1]/config"),
//	}
//	res, err := conn.Set(ctx, ops)
func (c *DeviceConnection) Set(ctx context.Context, ops []SetOperation, mods ...func(*Req)) (SetRes, error) {
	req := &Req{}
	for _, mod := range mods {
		mod(req)
	}
	if err := validateSetOperations(ops); err != nil {
		return SetRes{Errors: []ErrorModel{{Message: err.Error()}}}, fmt.Errorf("set: %w", err)
	}

	opts := make([]api.GNMIOption, 0, len(ops))
	for _, op := range ops {
		encoding := strings.ToLower(op.Encoding)
		if encoding == "" {
			encoding = EncodingJSONIETF
		}
		switch op.OperationType {
		case OperationUpdate:
			opts = append(opts, api.Update(api.Path(op.Path), api.Value(op.Value, encoding)))
		case OperationReplace:
			opts = append(opts, api.Replace(api.Path(op.Path), api.Value(op.Value, encoding)))
		case OperationDelete:
			opts = append(opts, api.Delete(op.Path))
		}
	}
	setReq, err := api.NewSetRequest(opts...)
	if err != nil {
		return SetRes{Errors: []ErrorModel{{Message: err.Error()}}}, fmt.Errorf("set: failed to create request: %w", err)
	}
	c.setTarget(&setReq.Prefix)

	for i, op := range ops {
		c.logger.Debug(ctx, "gNMI Set operation",
			"device", c.deviceID,
			"index", i,
			"operation", string(op.OperationType),
			"path", op.Path,
			"value", c.prepareJSONForLogging(op.Value))
	}

	resp, err := c.set(ctx, setReq, req)
	if err != nil {
		return SetRes{Errors: extractErrorDetails(err)}, err
	}
	return SetRes{Response: resp, Timestamp: time.Now().UnixNano(), OK: true}, nil
}

func (c *DeviceConnection) set(ctx context.Context, setReq *gnmipb.SetRequest, req *Req) (*gnmipb.SetResponse, error) {
	c.setMu.Lock()
	defer c.setMu.Unlock()

	c.logger.Debug(ctx, "gNMI Set request",
		"device", c.deviceID,
		"replace", len(setReq.GetReplace()),
		"update", len(setReq.GetUpdate()),
		"delete", len(setReq.GetDelete()))

	var resp *gnmipb.SetResponse
	err := c.invoke(ctx, "set", req, func(ctx context.Context) error {
		r, err := c.transport.Set(ctx, setReq)
		resp = r
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug(ctx, "gNMI Set response",
		"device", c.deviceID,
		"results", len(resp.GetResponse()))
	return resp, nil
}

// invoke runs call with a per-attempt timeout and retries transient gRPC
// errors with backoff. The whole operation is bounded by the operation
// timeout plus the sum of all backoff delays.
func (c *DeviceConnection) invoke(ctx context.Context, op string, req *Req, call func(context.Context) error) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	if err := checkContextCancellation(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.calculateTotalTimeout())
	defer cancel()

	var lastErr error
	attempt := 0
	for ; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := checkContextCancellation(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		attemptCtx, attemptCancel := c.createAttemptContext(ctx, req)
		err := call(attemptCtx)
		attemptCancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if c.isClosed() || !c.checkTransientError(err) || attempt == c.cfg.MaxRetries {
			break
		}

		backoff := c.Backoff(attempt)
		c.logger.Warn(ctx, "transient error, retrying",
			"device", c.deviceID,
			"operation", op,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"backoff", backoff,
			"error", err.Error())

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%s: context canceled during backoff: %w", op, ctx.Err())
		}
	}

	errs := extractErrorDetails(lastErr)
	c.logger.Error(ctx, "gNMI request failed",
		"device", c.deviceID,
		"operation", op,
		"error", lastErr.Error())
	return &GnmiError{
		Operation:   op,
		Errors:      errs,
		Message:     errs[0].Message,
		InternalMsg: errs[0].Details,
		Retries:     attempt,
		IsTransient: checkTransientErrorModels(errs),
		Err:         lastErr,
	}
}

// calculateTotalTimeout returns OperationTimeout plus the backoff delays of
// every retry.
func (c *DeviceConnection) calculateTotalTimeout() time.Duration {
	total := c.cfg.OperationTimeout
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		total += c.Backoff(attempt)
	}
	return total
}

// createAttemptContext bounds one attempt. The request timeout wins over an
// existing context deadline, which wins over the device's OperationTimeout.
func (c *DeviceConnection) createAttemptContext(ctx context.Context, req *Req) (context.Context, context.CancelFunc) {
	if req.Timeout > 0 {
		if req.Timeout < time.Second {
			c.logger.Warn(ctx, "request timeout is very short (may not complete)",
				"timeout", req.Timeout.String(),
				"device", c.deviceID)
		} else if req.Timeout > 5*time.Minute {
			c.logger.Warn(ctx, "request timeout is very long (may delay error detection)",
				"timeout", req.Timeout.String(),
				"device", c.deviceID)
		}
		return context.WithTimeout(ctx, req.Timeout)
	}
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.OperationTimeout)
}

func (c *DeviceConnection) prefix() *gnmipb.Path {
	if c.cfg.PathTarget == "" {
		return nil
	}
	return &gnmipb.Path{Target: c.cfg.PathTarget}
}

func (c *DeviceConnection) setTarget(prefix **gnmipb.Path) {
	if c.cfg.PathTarget == "" {
		return
	}
	if *prefix == nil {
		*prefix = &gnmipb.Path{}
	}
	(*prefix).Target = c.cfg.PathTarget
}

func dataType(ds datatree.Datastore) gnmipb.GetRequest_DataType {
	if ds == datatree.State {
		return gnmipb.GetRequest_STATE
	}
	return gnmipb.GetRequest_CONFIG
}

// checkContextCancellation returns ctx.Err() without blocking.
func checkContextCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// validatePaths checks string paths: non-empty, bounded length, absolute
// or module-qualified, no null bytes, no /../ segments.
func validatePaths(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("paths cannot be empty")
	}
	for i, path := range paths {
		if path == "" {
			return fmt.Errorf("path cannot be empty (at index %d)", i)
		}
		if len(path) > MaxPathLength {
			return fmt.Errorf("path at index %d exceeds maximum length of %d characters: %s", i, MaxPathLength, truncatePath(path))
		}
		if !isValidGNMIPath(path) {
			return fmt.Errorf("path at index %d must start with '/' or be module-qualified (module:path): %s", i, path)
		}
		if err := checkPathSecurity(path); err != nil {
			return fmt.Errorf("path at index %d is invalid: %w", i, err)
		}
	}
	return nil
}

func validateSetOperations(ops []SetOperation) error {
	if len(ops) == 0 {
		return fmt.Errorf("operations cannot be empty")
	}
	for i, op := range ops {
		switch op.OperationType {
		case OperationUpdate, OperationReplace, OperationDelete:
		case "":
			return fmt.Errorf("operation type cannot be empty (at index %d)", i)
		default:
			return fmt.Errorf("operation type invalid: %s (must be 'update', 'replace', or 'delete', at index %d)", op.OperationType, i)
		}
		if err := validatePaths([]string{op.Path}); err != nil {
			return fmt.Errorf("operation at index %d: %w", i, err)
		}
		if op.OperationType == OperationDelete {
			continue
		}
		encoding := op.Encoding
		if encoding == "" {
			encoding = EncodingJSONIETF
		}
		if err := ValidateEncoding(encoding); err != nil {
			return fmt.Errorf("operation at index %d: %w", i, err)
		}
		if err := validateValue(op.Value, strings.ToLower(encoding)); err != nil {
			return fmt.Errorf("operation at index %d: %w", i, err)
		}
	}
	return nil
}

func validateValue(value, encoding string) error {
	if len(value) > MaxValueSize {
		return fmt.Errorf("value size exceeds maximum of %d bytes (got %d bytes)", MaxValueSize, len(value))
	}
	if (encoding == EncodingJSON || encoding == EncodingJSONIETF) && strings.TrimSpace(value) != "" && !gjson.Valid(value) {
		return fmt.Errorf("invalid JSON syntax")
	}
	return nil
}

func checkPathSecurity(path string) error {
	if i := strings.IndexByte(path, 0); i >= 0 {
		return fmt.Errorf("path contains null byte at position %d", i)
	}
	if i := strings.Index(path, "/../"); i >= 0 {
		return fmt.Errorf("path contains suspicious traversal pattern '/../' at position %d", i)
	}
	return nil
}

func truncatePath(path string) string {
	if len(path) <= 100 {
		return path
	}
	return path[:100] + "..."
}

// isValidGNMIPath accepts /absolute/paths and module:/qualified/paths.
func isValidGNMIPath(path string) bool {
	if path == "" {
		return false
	}
	if path[0] == '/' {
		return true
	}
	colonIdx := strings.IndexByte(path, ':')
	return colonIdx > 0 && colonIdx < len(path)-1 && path[colonIdx+1] == '/'
}
