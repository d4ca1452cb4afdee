// 版权所有 2024 InteriorLens Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 dispatch 把一个 FinalizedBatch 转换为对推理服务的一次 multipart 请求，
并把返回结果按批次顺序重新组装。

# 概述

Dispatcher 先在本地校验每个条目（空文件、扩展名、大小、内容嗅探），
未通过的条目直接得到错误结果，不会发往网络。其余条目按原顺序写入
同一个 POST /classify_batch 请求（字段名 images），响应按位置与发送
子集一一配对，最终每个输入条目恰好对应一个结果，且位于自己的下标。

# 核心类型

  - Dispatcher：批次分发器，持有校验器、HTTP 客户端、指标与追踪器。
  - Validator：本地校验，错误消息即展示给用户的文本。
  - Client：流式构造 multipart 请求体并解析 JSON 响应。

# 失败处理

  - 网络失败、超时、服务端错误都会落到每个已发送条目上，并通过
    BatchResponse.Outcome 区分；Dispatch 只有在空批次时返回 error。
  - 响应结果不足时，缺失的条目得到服务端错误消息。
  - 没有文件名的图片按位置命名：单张为 image.jpg，相册内为 image_N.jpg。
*/
package dispatch
