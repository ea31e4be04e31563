package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/NethermindEth/katana/adapters/core2sn"
	"github.com/NethermindEth/katana/clients/feeder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/starknet"
)

const FeederGatewayPath = "/feeder_gateway/"

var errBadBlockNumber = errors.New("invalid blockNumber")

// FeederGateway serves the sealed chain in the format clients/feeder reads, so that another
// node can trail this one. Unknown objects answer 404.
func (h *Handler) FeederGateway() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+FeederGatewayPath+"get_block", h.gatewayBlock)
	mux.HandleFunc("GET "+FeederGatewayPath+"get_state_update", h.gatewayStateUpdate)
	mux.HandleFunc("GET "+FeederGatewayPath+"get_class_by_hash", h.gatewayClass)
	return mux
}

// gatewayBlockNumber resolves the blockNumber query parameter. It defaults to the head.
func (h *Handler) gatewayBlockNumber(r *http.Request) (uint64, error) {
	param := r.URL.Query().Get("blockNumber")
	if param == "" || param == feeder.LatestBlock {
		return h.bcReader.Height()
	}
	number, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		return 0, errBadBlockNumber
	}
	return number, nil
}

func (h *Handler) gatewayBlock(w http.ResponseWriter, r *http.Request) {
	number, err := h.gatewayBlockNumber(r)
	if err != nil {
		h.gatewayError(w, err)
		return
	}
	block, err := h.bcReader.BlockByNumber(number)
	if err != nil {
		h.gatewayError(w, err)
		return
	}
	h.writeGatewayJSON(w, core2sn.AdaptBlock(block))
}

func (h *Handler) gatewayStateUpdate(w http.ResponseWriter, r *http.Request) {
	number, err := h.gatewayBlockNumber(r)
	if err != nil {
		h.gatewayError(w, err)
		return
	}
	block, err := h.bcReader.BlockByNumber(number)
	if err != nil {
		h.gatewayError(w, err)
		return
	}
	diff, err := h.bcReader.StateUpdateByNumber(number)
	if err != nil {
		h.gatewayError(w, err)
		return
	}

	oldRoot := &felt.Zero
	if number > 0 {
		parent, err := h.bcReader.BlockHeaderByNumber(number - 1)
		if err != nil {
			h.gatewayError(w, err)
			return
		}
		oldRoot = parent.StateRoot
	}
	update := core2sn.AdaptStateUpdate(block.Header, oldRoot, diff)

	if include, _ := strconv.ParseBool(r.URL.Query().Get("includeBlock")); include {
		h.writeGatewayJSON(w, &starknet.StateUpdateWithBlock{
			Block:       core2sn.AdaptBlock(block),
			StateUpdate: update,
		})
		return
	}
	h.writeGatewayJSON(w, update)
}

func (h *Handler) gatewayClass(w http.ResponseWriter, r *http.Request) {
	classHash, err := new(felt.Felt).SetString(r.URL.Query().Get("classHash"))
	if err != nil {
		http.Error(w, "invalid classHash", http.StatusBadRequest)
		return
	}

	reader, closer, err := h.bcReader.HeadState()
	if err != nil {
		h.gatewayError(w, err)
		return
	}
	defer h.callAndLogErr(closer, "Error closing state reader in get_class_by_hash")

	declared, err := reader.Class(classHash)
	if err != nil {
		h.gatewayError(w, err)
		return
	}
	h.writeGatewayJSON(w, core2sn.AdaptClass(declared.Class))
}

func (h *Handler) gatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadBlockNumber):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, db.ErrKeyNotFound), errors.Is(err, core.ErrClassNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.log.Errorw("Feeder gateway request failed", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeGatewayJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debugw("Failed to write feeder gateway response", "err", err)
	}
}
