// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.teardown()
	}
})

// userCounter makes usernames unique across specs so they never collide on
// the database's unique constraints.
var userCounter atomic.Int64

func nextUsername() string {
	return fmt.Sprintf("listener%d", userCounter.Add(1))
}

func postJSON(client *http.Client, path string, payload map[string]any) (*http.Response, map[string]any) {
	GinkgoHelper()

	body, err := json.Marshal(payload)
	Expect(err).NotTo(HaveOccurred())

	resp, err := client.Post(env.baseURL+path, "application/json", bytes.NewReader(body))
	Expect(err).NotTo(HaveOccurred())

	var decoded map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
	Expect(resp.Body.Close()).To(Succeed())
	return resp, decoded
}

func getJSON(client *http.Client, path string) (*http.Response, map[string]any) {
	GinkgoHelper()

	resp, err := client.Get(env.baseURL + path)
	Expect(err).NotTo(HaveOccurred())

	var decoded map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
	Expect(resp.Body.Close()).To(Succeed())
	return resp, decoded
}

func register(client *http.Client, username, email, password string) map[string]any {
	GinkgoHelper()

	resp, body := postJSON(client, "/api/auth/register", map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	})
	Expect(resp.StatusCode).To(Equal(http.StatusCreated))
	return body
}

var _ = Describe("Account API", func() {
	Describe("registration", func() {
		It("creates an account and establishes a session", func() {
			client := env.newClient()
			username := nextUsername()

			body := register(client, username, username+"@example.com", "correct horse battery staple")

			Expect(body["success"]).To(BeTrue())
			user, ok := body["user"].(map[string]any)
			Expect(ok).To(BeTrue(), "response should include the user")
			Expect(user["username"]).To(Equal(username))
			Expect(user["id"]).NotTo(BeEmpty())
			Expect(user).NotTo(HaveKey("password_hash"))

			// The registration response doubles as a login.
			resp, me := getJSON(client, "/api/auth/me")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			meUser := me["user"].(map[string]any)
			Expect(meUser["username"]).To(Equal(username))
		})

		It("provisions the user's storage directories", func() {
			client := env.newClient()
			username := nextUsername()

			body := register(client, username, username+"@example.com", "correct horse battery staple")
			user := body["user"].(map[string]any)

			playlists := filepath.Join(env.dataDir, "users", user["id"].(string), "playlists")
			info, err := os.Stat(playlists)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		})

		It("rejects a duplicate username", func() {
			client := env.newClient()
			username := nextUsername()
			register(client, username, username+"@example.com", "correct horse battery staple")

			resp, body := postJSON(env.newClient(), "/api/auth/register", map[string]any{
				"username": username,
				"email":    username + "-other@example.com",
				"password": "correct horse battery staple",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["success"]).To(BeFalse())
			Expect(body["message"]).To(ContainSubstring("username"))
		})

		It("rejects a duplicate email regardless of case", func() {
			client := env.newClient()
			username := nextUsername()
			register(client, username, username+"@example.com", "correct horse battery staple")

			resp, body := postJSON(env.newClient(), "/api/auth/register", map[string]any{
				"username": nextUsername(),
				"email":    username + "@EXAMPLE.COM",
				"password": "correct horse battery staple",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["message"]).To(ContainSubstring("email"))
		})

		It("validates inputs in order: username, email, password", func() {
			resp, body := postJSON(env.newClient(), "/api/auth/register", map[string]any{
				"username": "",
				"email":    "not-an-email",
				"password": "short",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["message"]).To(ContainSubstring("username"))
		})
	})

	Describe("login", func() {
		It("authenticates with the right password and rejects the wrong one", func() {
			username := nextUsername()
			password := "correct horse battery staple"
			register(env.newClient(), username, username+"@example.com", password)

			client := env.newClient()
			resp, body := postJSON(client, "/api/auth/login", map[string]any{
				"username": username,
				"password": password,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["success"]).To(BeTrue())

			resp, body = postJSON(env.newClient(), "/api/auth/login", map[string]any{
				"username": username,
				"password": "wrong password entirely",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(body["success"]).To(BeFalse())
		})

		It("does not reveal whether the username exists", func() {
			username := nextUsername()
			register(env.newClient(), username, username+"@example.com", "correct horse battery staple")

			_, wrongPassword := postJSON(env.newClient(), "/api/auth/login", map[string]any{
				"username": username,
				"password": "wrong password entirely",
			})
			_, noSuchUser := postJSON(env.newClient(), "/api/auth/login", map[string]any{
				"username": "no-such-user-anywhere",
				"password": "wrong password entirely",
			})
			Expect(wrongPassword["message"]).To(Equal(noSuchUser["message"]))
		})
	})

	Describe("session lifecycle", func() {
		It("terminates the session on logout", func() {
			client := env.newClient()
			username := nextUsername()
			register(client, username, username+"@example.com", "correct horse battery staple")

			resp, _ := getJSON(client, "/api/auth/me")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, body := postJSON(client, "/api/auth/logout", map[string]any{})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["success"]).To(BeTrue())

			resp, _ = getJSON(client, "/api/auth/me")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("rejects requests without a session", func() {
			resp, body := getJSON(env.newClient(), "/api/auth/me")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(body["success"]).To(BeFalse())
		})

		It("keeps sessions independent between clients", func() {
			alice := env.newClient()
			bob := env.newClient()
			aliceName := nextUsername()
			bobName := nextUsername()

			register(alice, aliceName, aliceName+"@example.com", "correct horse battery staple")
			register(bob, bobName, bobName+"@example.com", "correct horse battery staple")

			_, _ = postJSON(alice, "/api/auth/logout", map[string]any{})

			resp, body := getJSON(bob, "/api/auth/me")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["user"].(map[string]any)["username"]).To(Equal(bobName))
		})
	})
})
