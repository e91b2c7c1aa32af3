package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/client"
	"github.com/agentmesh/a2a-core/pkg/sse"
)

var (
	agentURLFlag string
	streamFlag   bool

	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "A2A client operations",
		Long:  `Run client operations against A2A agents`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	sendCmd = &cobra.Command{
		Use:   "send [prompt]",
		Short: "Send a message to an agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			agent := client.NewAgentClient(agentURLFlag)

			card, err := agent.Card(cmd.Context())
			if err != nil {
				return err
			}
			log.Info("connected", "agent", card.Name, "streaming", card.Capabilities.Streaming)

			if !streamFlag {
				reply, err := agent.SendText(cmd.Context(), prompt)
				if err != nil {
					return err
				}
				fmt.Println(reply)
				return nil
			}

			params := a2a.MessageSendParams{Message: a2a.NewUserMessage(a2a.TextPart(prompt))}

			events, err := agent.StreamMessage(cmd.Context(), params)
			if err != nil {
				return err
			}

			for snapshot := range agent.Mirror(cmd.Context(), events) {
				fmt.Println(snapshot.String())
			}

			return nil
		},
	}

	getTaskCmd = &cobra.Command{
		Use:   "get [task-id]",
		Short: "Fetch a task by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := client.NewAgentClient(agentURLFlag)

			task, err := agent.GetTask(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}

			fmt.Println(task.String())
			return nil
		},
	}

	cancelTaskCmd = &cobra.Command{
		Use:   "cancel [task-id]",
		Short: "Cancel a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := client.NewAgentClient(agentURLFlag)

			task, err := agent.CancelTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Println(task.String())
			return nil
		},
	}

	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "Tail the agent's firehose event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			firehose := sse.NewClient(strings.TrimRight(agentURLFlag, "/") + "/events")
			defer firehose.Close()

			return firehose.SubscribeWithContext(cmd.Context(), "", func(event *sse.Event) {
				decoded, err := event.Decode()
				if err != nil {
					log.Warn("undecodable event", "error", err)
					return
				}
				log.Info("event", "kind", decoded.EventKind(), "task", a2a.EventTaskID(decoded))
			})
		},
	}
)

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(sendCmd, getTaskCmd, cancelTaskCmd, eventsCmd)

	clientCmd.PersistentFlags().StringVarP(&agentURLFlag, "url", "u", "http://localhost:3210", "Base URL of the agent")
	sendCmd.Flags().BoolVarP(&streamFlag, "stream", "s", false, "Stream task updates instead of waiting for completion")
}
