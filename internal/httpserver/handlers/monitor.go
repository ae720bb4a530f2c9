package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/monitor"
)

type createTaskRequest struct {
	ShopName         string           `json:"shopName"`
	TargetActivityID int64            `json:"targetActivityId"`
	TargetPrice      *decimal.Decimal `json:"targetPrice"`
}

type updatePriceRequest struct {
	TargetPrice *decimal.Decimal `json:"targetPrice"`
}

type cleanupResponse struct {
	Count int `json:"count"`
}

func CreateTask(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTaskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.TargetPrice == nil {
			writeError(w, http.StatusBadRequest, "targetPrice is required")
			return
		}

		task, err := d.Monitor.CreateTask(req.ShopName, req.TargetActivityID, *req.TargetPrice)
		if err != nil {
			if errors.Is(err, monitor.ErrInvalidTask) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			d.Logger.Error("failed to create task", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create task")
			return
		}
		writeJSON(w, http.StatusCreated, task)
	}
}

func ListTasks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Monitor.ListTasks())
	}
}

func GetTask(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := d.Monitor.GetTask(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func DeleteTask(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok := d.Monitor.DeleteTask(chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, successResponse{Success: ok})
	}
}

func StopTask(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok := d.Monitor.StopTask(chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, successResponse{Success: ok})
	}
}

func UpdateTargetPrice(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updatePriceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.TargetPrice == nil || req.TargetPrice.IsNegative() {
			writeError(w, http.StatusBadRequest, "targetPrice must be a non-negative number")
			return
		}

		ok := d.Monitor.UpdateTargetPrice(chi.URLParam(r, "id"), *req.TargetPrice)
		writeJSON(w, http.StatusOK, successResponse{Success: ok})
	}
}

func Cleanup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cleanupResponse{Count: d.Monitor.Cleanup()})
	}
}

func HistoricalData(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "activityId")), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "activityId must be an integer")
			return
		}
		writeJSON(w, http.StatusOK, d.Monitor.HistoricalData(activityID))
	}
}
