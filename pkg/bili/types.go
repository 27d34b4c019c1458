package bili

import (
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// CleanTitle removes the keyword-highlight markup the search API embeds in
// titles.
func CleanTitle(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// NormalizePic upgrades protocol-relative image URLs.
func NormalizePic(pic string) string {
	if strings.HasPrefix(pic, "//") {
		return "https:" + pic
	}
	return pic
}

// VideoItem is one video search result.
type VideoItem struct {
	Bvid      string `json:"bvid"`
	Title     string `json:"title"`
	Pic       string `json:"pic"`
	Author    string `json:"author"`
	Mid       int64  `json:"mid"`
	Pubdate   int64  `json:"pubdate"`
	Play      int64  `json:"play"`
	Duration  string `json:"duration"`
	Danmaku   int64  `json:"danmaku"`
	Favorites int64  `json:"favorites"`
}

// SearchResult is the unpacked pagination envelope of a video search.
type SearchResult struct {
	Results    []VideoItem
	NumPages   int
	NumResults int
	PageSize   int
	Page       int
}

// UserItem is one user search result.
type UserItem struct {
	Mid            int64  `json:"mid"`
	Uname          string `json:"uname"`
	Usign          string `json:"usign"`
	Fans           int64  `json:"fans"`
	Videos         int64  `json:"videos"`
	Upic           string `json:"upic"`
	Level          int    `json:"level"`
	OfficialVerify struct {
		Type int    `json:"type"`
		Desc string `json:"desc"`
	} `json:"official_verify"`
}

// UserVideo is one entry of a user's upload listing.
type UserVideo struct {
	Bvid    string `json:"bvid"`
	Title   string `json:"title"`
	Pic     string `json:"pic"`
	Author  string `json:"author"`
	Mid     int64  `json:"mid"`
	Created int64  `json:"created"`
	Play    int64  `json:"play"`
	Length  string `json:"length"`
	Comment int64  `json:"comment"`
}

// UserVideosResult is the unpacked envelope of a user upload listing.
type UserVideosResult struct {
	Results  []UserVideo
	Total    int
	Page     int
	PageSize int
}

type navResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		WbiImg struct {
			ImgURL string `json:"img_url"`
			SubURL string `json:"sub_url"`
		} `json:"wbi_img"`
	} `json:"data"`
}

type searchResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Result     []VideoItem `json:"result"`
		NumPages   int         `json:"numPages"`
		NumResults int         `json:"numResults"`
		PageSize   int         `json:"pagesize"`
		Page       int         `json:"page"`
	} `json:"data"`
}

type userSearchResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Result []UserItem `json:"result"`
	} `json:"data"`
}

type userVideosResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		List struct {
			Vlist []UserVideo `json:"vlist"`
		} `json:"list"`
		Page struct {
			Count int `json:"count"`
			Pn    int `json:"pn"`
			Ps    int `json:"ps"`
		} `json:"page"`
	} `json:"data"`
}

type viewResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Cid   int64 `json:"cid"`
		Pages []struct {
			Cid int64 `json:"cid"`
		} `json:"pages"`
	} `json:"data"`
}

type playURLResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Dash struct {
			Audio []struct {
				ID        int    `json:"id"`
				BaseURL   string `json:"baseUrl"`
				Bandwidth int    `json:"bandwidth"`
			} `json:"audio"`
		} `json:"dash"`
	} `json:"data"`
}
