package server

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestPaginateClampsPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name     string
		page     int
		perPage  int
		want     []int
		wantInfo pageInfo
	}{
		{name: "first page", page: 1, perPage: 2, want: []int{1, 2}, wantInfo: pageInfo{Page: 1, PerPage: 2, Total: 5, TotalPages: 3, HasNext: true}},
		{name: "last page is short", page: 3, perPage: 2, want: []int{5}, wantInfo: pageInfo{Page: 3, PerPage: 2, Total: 5, TotalPages: 3, HasPrev: true}},
		{name: "past the end", page: 9, perPage: 2, want: []int{5}, wantInfo: pageInfo{Page: 3, PerPage: 2, Total: 5, TotalPages: 3, HasPrev: true}},
		{name: "zero page", page: 0, perPage: 10, want: []int{1, 2, 3, 4, 5}, wantInfo: pageInfo{Page: 1, PerPage: 10, Total: 5, TotalPages: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, info := paginate(items, tt.page, tt.perPage)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantInfo, info)
		})
	}

	got, info := paginate([]Event{}, 1, 10)
	assert.Empty(t, got)
	assert.Equal(t, 1, info.TotalPages)
}

func TestParsePagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=2&per_page=9000", nil)

	page, perPage := parsePagination(c, defaultEventsPerPage, maxEventsPerPage)
	assert.Equal(t, 2, page)
	assert.Equal(t, maxEventsPerPage, perPage)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=-1&per_page=abc", nil)
	page, perPage = parsePagination(c, defaultEventsPerPage, maxEventsPerPage)
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultEventsPerPage, perPage)
}
