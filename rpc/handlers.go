package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

func decodeParams(req *RPCRequest, target interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("expected a single params object")
	}
	return json.Unmarshal(req.Params[0], target)
}

func parseAddress(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.New("invalid address: " + value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, errors.New("invalid amount: " + value)
	}
	return amount, nil
}

type batchParams struct {
	Caller  string   `json:"caller"`
	UnitIDs []uint64 `json:"unitIds"`
}

type secondaryBatchParams struct {
	Caller       string   `json:"caller"`
	UnitIDs      []uint64 `json:"unitIds"`
	MaxSecondary string   `json:"maxSecondary"`
	Deadline     int64    `json:"deadline"`
}

type mintParams struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

type secondaryMintParams struct {
	Caller       string `json:"caller"`
	Amount       uint64 `json:"amount"`
	MaxSecondary string `json:"maxSecondary"`
	Deadline     int64  `json:"deadline"`
}

func (s *Server) handleBankDeposit(w http.ResponseWriter, req *RPCRequest) int {
	var params batchParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.Deposit(caller, params.UnitIDs); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"deposited": len(params.UnitIDs)})
	return http.StatusOK
}

func (s *Server) handleBankWithdraw(w http.ResponseWriter, req *RPCRequest) int {
	var params batchParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.WithdrawDirect(caller, params.UnitIDs); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"withdrawn": len(params.UnitIDs)})
	return http.StatusOK
}

func (s *Server) handleBankWithdrawWithSecondary(w http.ResponseWriter, req *RPCRequest) int {
	var params secondaryBatchParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	maxSecondary, err := parseAmount(params.MaxSecondary)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.WithdrawWithSecondary(caller, params.UnitIDs, maxSecondary, params.Deadline); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"withdrawn": len(params.UnitIDs)})
	return http.StatusOK
}

// BankInfoResult reports the bank's public configuration and treasury state.
type BankInfoResult struct {
	Address           string `json:"address"`
	Active            bool   `json:"active"`
	Collection        string `json:"collection"`
	MaxPerTransaction uint64 `json:"maxPerTransaction"`
	CustodyUnits      uint64 `json:"custodyUnits"`
	Treasury          string `json:"treasury"`
}

func (s *Server) handleBankInfo(w http.ResponseWriter, req *RPCRequest) int {
	info, err := s.node.BankInfo()
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, BankInfoResult{
		Address:           info.Address.Hex(),
		Active:            info.Active,
		Collection:        info.Collection.Hex(),
		MaxPerTransaction: info.MaxPerTransaction,
		CustodyUnits:      info.CustodyUnits,
		Treasury:          info.Treasury.String(),
	})
	return http.StatusOK
}

type activateParams struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
}

func (s *Server) handleBankActivate(w http.ResponseWriter, req *RPCRequest) int {
	var params activateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	collectionAddr, err := parseAddress(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.ActivateBank(caller, collectionAddr); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"active": true})
	return http.StatusOK
}

type limitParams struct {
	Caller string `json:"caller"`
	Value  uint64 `json:"value"`
}

func (s *Server) handleBankSetMaxPerTransaction(w http.ResponseWriter, req *RPCRequest) int {
	var params limitParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.SetMaxPerTransaction(caller, params.Value); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"maxPerTransaction": params.Value})
	return http.StatusOK
}

func (s *Server) handleMintCreate(w http.ResponseWriter, req *RPCRequest) int {
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	ids, err := s.node.MintDirect(caller, params.Amount)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"unitIds": ids})
	return http.StatusOK
}

func (s *Server) handleMintCreateWithSecondary(w http.ResponseWriter, req *RPCRequest) int {
	var params secondaryMintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	maxSecondary, err := parseAmount(params.MaxSecondary)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	ids, err := s.node.MintWithSecondary(caller, params.Amount, maxSecondary, params.Deadline)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"unitIds": ids})
	return http.StatusOK
}

// MintInfoResult reports the sale state alongside supply figures.
type MintInfoResult struct {
	SaleActive bool   `json:"saleActive"`
	Issued     uint64 `json:"issued"`
	MaxSupply  uint64 `json:"maxSupply"`
}

func (s *Server) handleMintInfo(w http.ResponseWriter, req *RPCRequest) int {
	info, err := s.node.MintInfo()
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, MintInfoResult{SaleActive: info.SaleActive, Issued: info.Issued, MaxSupply: info.MaxSupply})
	return http.StatusOK
}

type callerParams struct {
	Caller string `json:"caller"`
}

func (s *Server) handleMintFlipSaleState(w http.ResponseWriter, req *RPCRequest) int {
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	active, err := s.node.FlipSaleState(caller)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"saleActive": active})
	return http.StatusOK
}

// GuardParamsResult reports the TWAP guard configuration.
type GuardParamsResult struct {
	LookbackSeconds     uint64 `json:"lookbackSeconds"`
	AllowedDeviationBps uint64 `json:"allowedDeviationBps"`
}

func (s *Server) handleGuardParams(w http.ResponseWriter, req *RPCRequest) int {
	params, err := s.node.GuardParams()
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, GuardParamsResult{LookbackSeconds: params.LookbackSeconds, AllowedDeviationBps: params.DeviationBps})
	return http.StatusOK
}

func (s *Server) handleGuardSetLookbackSeconds(w http.ResponseWriter, req *RPCRequest) int {
	var params limitParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.SetLookbackSeconds(caller, params.Value); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"lookbackSeconds": params.Value})
	return http.StatusOK
}

func (s *Server) handleGuardSetDeviationBps(w http.ResponseWriter, req *RPCRequest) int {
	var params limitParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.SetDeviationBps(caller, params.Value); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"allowedDeviationBps": params.Value})
	return http.StatusOK
}

type tokenURIParams struct {
	ID uint64 `json:"id"`
}

func (s *Server) handleCollectionTokenURI(w http.ResponseWriter, req *RPCRequest) int {
	var params tokenURIParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	uri, err := s.node.TokenURI(params.ID)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"tokenURI": uri})
	return http.StatusOK
}

// CollectionInfoResult reports supply and metadata state for the collection.
type CollectionInfoResult struct {
	Issued      uint64 `json:"issued"`
	MaxSupply   uint64 `json:"maxSupply"`
	ContractURI string `json:"contractURI"`
}

func (s *Server) handleCollectionInfo(w http.ResponseWriter, req *RPCRequest) int {
	info, err := s.node.CollectionInfo()
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, CollectionInfoResult{Issued: info.Issued, MaxSupply: info.MaxSupply, ContractURI: info.ContractURI})
	return http.StatusOK
}

func (s *Server) handleCollectionCutSupply(w http.ResponseWriter, req *RPCRequest) int {
	var params limitParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.CutSupply(caller, params.Value); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"maxSupply": params.Value})
	return http.StatusOK
}

type uriParams struct {
	Caller string `json:"caller"`
	URI    string `json:"uri"`
}

func (s *Server) handleCollectionSetBaseURI(w http.ResponseWriter, req *RPCRequest) int {
	var params uriParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.SetBaseURI(caller, params.URI); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"baseURI": params.URI})
	return http.StatusOK
}

func (s *Server) handleCollectionSetContractURI(w http.ResponseWriter, req *RPCRequest) int {
	var params uriParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.SetContractURI(caller, params.URI); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"contractURI": params.URI})
	return http.StatusOK
}

type accountParams struct {
	Account string `json:"account"`
}

// BalanceResult reports an account's fungible and unit holdings.
type BalanceResult struct {
	Account   string `json:"account"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Units     uint64 `json:"units"`
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, req *RPCRequest) int {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	balances, err := s.node.Balances(account)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, BalanceResult{
		Account:   account.Hex(),
		Primary:   balances.Primary.String(),
		Secondary: balances.Secondary.String(),
		Units:     balances.Units,
	})
	return http.StatusOK
}

func (s *Server) handleOwnerGet(w http.ResponseWriter, req *RPCRequest) int {
	owner, err := s.node.Owner()
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"owner": owner.Hex()})
	return http.StatusOK
}

type transferOwnerParams struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

func (s *Server) handleOwnerTransfer(w http.ResponseWriter, req *RPCRequest) int {
	var params transferOwnerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	newOwner, err := parseAddress(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.TransferOwnership(caller, newOwner); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"pendingOwner": newOwner.Hex()})
	return http.StatusOK
}

func (s *Server) handleOwnerAccept(w http.ResponseWriter, req *RPCRequest) int {
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.node.AcceptOwnership(caller); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"owner": caller.Hex()})
	return http.StatusOK
}

type listEventsParams struct {
	Type    string `json:"type"`
	Account string `json:"account"`
	Limit   int    `json:"limit"`
}

func (s *Server) handleExplorerListEvents(w http.ResponseWriter, req *RPCRequest) int {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "event index not configured", nil)
		return http.StatusServiceUnavailable
	}
	var params listEventsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return http.StatusBadRequest
		}
	}
	stored, err := s.index.ListEvents(params.Type, params.Account, params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return http.StatusInternalServerError
	}
	writeResult(w, req.ID, map[string]interface{}{"events": stored})
	return http.StatusOK
}
