package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cometab/internal/middleware"
	"github.com/hitoshi/cometab/internal/model"
)

// StatsServiceInterface は集計ハンドラーが必要とするサービスインターフェース。
type StatsServiceInterface interface {
	GroupStats(ctx context.Context, groupID int64) (*model.GroupStats, error)
	AllStats(ctx context.Context) ([]model.GroupStats, error)
	FindGroupByName(ctx context.Context, name string) (*model.Group, error)
}

// StatsHandler はグループ集計とグループ検索のHTTPハンドラー。
type StatsHandler struct {
	service StatsServiceInterface
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(service StatsServiceInterface) *StatsHandler {
	return &StatsHandler{service: service}
}

// groupStatsResponse はグループ集計のAPIレスポンス。
type groupStatsResponse struct {
	GroupID        int64   `json:"group_id"`
	GroupName      string  `json:"group_name"`
	TotalClicks    int     `json:"total_clicks"`
	UniqueUsers    int     `json:"unique_users"`
	TotalUsers     int     `json:"total_users"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversion_rate"`
}

type allStatsResponse struct {
	Stats []groupStatsResponse `json:"stats"`
}

// groupResponse はグループ情報のAPIレスポンス。
type groupResponse struct {
	ID          int64  `json:"id"`
	GroupName   string `json:"group_name"`
	Description string `json:"description"`
}

// GroupStats は指定グループの集計を返す。
// GET /stats/group/{id}
func (h *StatsHandler) GroupStats(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || groupID <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("group id must be a positive integer"))
		return
	}

	st, err := h.service.GroupStats(r.Context(), groupID)
	if err != nil {
		// パスで指定されたグループが存在しない場合は404
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeGroupNotFound {
			middleware.WriteErrorResponse(w, http.StatusNotFound, apiErr)
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupStatsResponse(st))
}

// AllStats は全グループの集計を返す。
// GET /stats/all
func (h *StatsHandler) AllStats(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.AllStats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := allStatsResponse{Stats: make([]groupStatsResponse, 0, len(all))}
	for i := range all {
		resp.Stats = append(resp.Stats, toGroupStatsResponse(&all[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// FindGroup はgroup_nameでグループを検索する。
// GET /api/groups?name=
func (h *StatsHandler) FindGroup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		handleServiceError(w, model.NewInvalidRequestError("name query parameter is required"))
		return
	}

	g, err := h.service.FindGroupByName(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, groupResponse{ID: g.ID, GroupName: g.GroupName, Description: g.Description})
}

func toGroupStatsResponse(st *model.GroupStats) groupStatsResponse {
	return groupStatsResponse{
		GroupID:        st.GroupID,
		GroupName:      st.GroupName,
		TotalClicks:    st.TotalClicks,
		UniqueUsers:    st.UniqueUsers,
		TotalUsers:     st.TotalUsers,
		CTR:            st.CTR,
		ConversionRate: st.ConversionRate,
	}
}
