package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/starknet"
	"github.com/govm-net/starksim/types"
	"github.com/govm-net/starksim/vm"
)

const (
	DeployRouteName   = "deploy"
	InvokeRouteName   = "invoke"
	CallRouteName     = "call"
	ContractRouteName = "contract"
	StorageRouteName  = "storage"
	ReceiptRouteName  = "receipt"
	BlockRouteName    = "block"
)

type route struct {
	method  string
	path    string
	handler httprouter.Handle
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		DeployRouteName:   {http.MethodPost, "/deploy", s.Deploy},
		InvokeRouteName:   {http.MethodPost, "/invoke", s.Invoke},
		CallRouteName:     {http.MethodPost, "/call", s.Call},
		ContractRouteName: {http.MethodGet, "/contracts/:address", s.Contract},
		StorageRouteName:  {http.MethodGet, "/storage/:address/:key", s.Storage},
		ReceiptRouteName:  {http.MethodGet, "/receipts/:hash", s.Receipt},
		BlockRouteName:    {http.MethodGet, "/block", s.Block},
	}
}

// DeployRequest deploys the artifact at Path. Relative paths resolve
// against the simulation's base directory.
type DeployRequest struct {
	Path     string      `json:"path"`
	Calldata []core.Felt `json:"calldata,omitempty"`
}

type DeployResponse struct {
	Address     core.Felt     `json:"contract_address"`
	ClassHash   core.Felt     `json:"class_hash"`
	TxHash      core.Felt     `json:"transaction_hash"`
	BlockNumber uint64        `json:"block_number"`
	Events      []types.Event `json:"events"`
}

// ExecuteRequest targets one entry point. Args are named arguments;
// Calldata is used as-is when Args is absent.
type ExecuteRequest struct {
	Address    core.Felt      `json:"contract_address"`
	EntryPoint string         `json:"entry_point"`
	Args       map[string]any `json:"args,omitempty"`
	Calldata   []core.Felt    `json:"calldata,omitempty"`
}

type ContractResponse struct {
	Address   core.Felt `json:"contract_address"`
	ClassHash core.Felt `json:"class_hash"`
	ABI       *abi.ABI  `json:"abi"`
}

type StorageResponse struct {
	Value core.Felt `json:"value"`
}

func (s *Server) Deploy(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(DeployRequest)
	if !unmarshal(w, r, req) {
		return
	}
	if req.Path == "" {
		writeError(w, fmt.Errorf("%w: path is required", errBadRequest))
		return
	}
	c, err := s.sim.Deploy(r.Context(), req.Path, req.Calldata)
	if err != nil {
		writeError(w, err)
		return
	}
	events := c.DeployReceipt.Events
	if events == nil {
		events = []types.Event{}
	}
	write(w, DeployResponse{
		Address:     c.Address,
		ClassHash:   c.ClassHash,
		TxHash:      c.DeployReceipt.TxHash,
		BlockNumber: c.DeployReceipt.BlockNumber,
		Events:      events,
	}, http.StatusOK)
}

func (s *Server) Invoke(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.execute(w, r, (*starknet.Contract).InvokeRaw)
}

func (s *Server) Call(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.execute(w, r, (*starknet.Contract).CallRaw)
}

type executeFunc func(c *starknet.Contract, ctx context.Context, entryPoint string, calldata []core.Felt) (*starknet.ExecutionInfo, error)

func (s *Server) execute(w http.ResponseWriter, r *http.Request, run executeFunc) {
	req := new(ExecuteRequest)
	if !unmarshal(w, r, req) {
		return
	}
	if req.EntryPoint == "" {
		writeError(w, fmt.Errorf("%w: entry_point is required", errBadRequest))
		return
	}
	if req.Args != nil && req.Calldata != nil {
		writeError(w, fmt.Errorf("%w: args and calldata are mutually exclusive", errBadRequest))
		return
	}

	c, err := s.sim.ContractAt(r.Context(), req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	fn, ok := c.ABI.Lookup(req.EntryPoint)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", vm.ErrEntryPointNotFound, req.EntryPoint))
		return
	}
	calldata := req.Calldata
	if req.Args != nil || calldata == nil {
		if calldata, err = fn.EncodeArgs(req.Args); err != nil {
			writeError(w, err)
			return
		}
	}

	info, err := run(c, r.Context(), fn.Name, calldata)
	if err != nil {
		writeError(w, err)
		return
	}
	if info.Events == nil {
		info.Events = []types.Event{}
	}
	write(w, info, http.StatusOK)
}

func (s *Server) Contract(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	address, ok := feltParam(w, p, "address")
	if !ok {
		return
	}
	c, err := s.sim.ContractAt(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, ContractResponse{Address: c.Address, ClassHash: c.ClassHash, ABI: c.ABI}, http.StatusOK)
}

func (s *Server) Storage(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	address, ok := feltParam(w, p, "address")
	if !ok {
		return
	}
	key, ok := feltParam(w, p, "key")
	if !ok {
		return
	}
	value, err := s.sim.Storage(address, key)
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, StorageResponse{Value: value}, http.StatusOK)
}

func (s *Server) Receipt(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	hash, ok := feltParam(w, p, "hash")
	if !ok {
		return
	}
	receipt, err := s.sim.Receipt(hash)
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, receipt, http.StatusOK)
}

func (s *Server) Block(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	header, err := s.sim.LatestBlock()
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, header, http.StatusOK)
}

// feltParam parses a felt path parameter, writing 400 on failure.
func feltParam(w http.ResponseWriter, p httprouter.Params, name string) (core.Felt, bool) {
	f, err := core.ParseFelt(p.ByName(name))
	if err != nil {
		writeError(w, errors.Join(errBadRequest, fmt.Errorf("%s: %w", name, err)))
		return core.Zero, false
	}
	return f, true
}
